// services/game_service.go
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/randutil"
	"github.com/wfunc/liarsbar/room"
	"github.com/wfunc/liarsbar/state"
)

// 操作名，用于指标标签
const (
	OpCreateRoom      = "createRoom"
	OpJoinRoom        = "joinRoom"
	OpStartGame       = "startGame"
	OpReconnect       = "reconnect"
	OpMakeMove        = "makeMove"
	OpCallLiar        = "callLiar"
	OpTriggerRoulette = "triggerRoulette"
)

// Recorder receives game metrics.
type Recorder interface {
	ObserveOperation(op string, err error)
	IncEliminations()
	IncGamesFinished()
}

// RoomLister is the part of the store used to restore rooms at startup.
type RoomLister interface {
	ListRooms() ([]*models.GameRoom, error)
}

// Options configures the service.
type Options struct {
	DefaultMaxPlayers int
	Seed              int64 // 0 seeds from the OS
	HandEmptyWins     bool
	Clock             quartz.Clock
	Recorder          Recorder
}

// JoinResult is returned by JoinRoom and Reconnect. Both values are read-only
// snapshots.
type JoinResult struct {
	Player *models.Player
	Room   *models.GameRoom
}

// ChallengeResult is returned by CallLiar.
type ChallengeResult struct {
	Room      *models.GameRoom
	Challenge state.Challenge
}

// RouletteResult is returned by TriggerRoulette.
type RouletteResult struct {
	Room    *models.GameRoom
	Outcome state.RouletteOutcome
}

// GameService 游戏服务：解析房间，经房间执行体串行执行引擎操作
type GameService struct {
	rooms    *room.Manager
	engine   *state.Engine
	opts     Options
	recorder Recorder

	rngMutex sync.Mutex
	master   randutil.Source
	rngs     sync.Map // roomID -> *roomRNG
}

// roomRNG is only touched inside mutations, which the room actor serializes.
type roomRNG struct {
	src randutil.Source
}

func NewGameService(rooms *room.Manager, opts Options) *GameService {
	if opts.DefaultMaxPlayers == 0 {
		opts.DefaultMaxPlayers = 4
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = randutil.NewSeed()
	}

	rules := state.DefaultRules()
	if opts.HandEmptyWins {
		rules.ExtraWinRules = append(rules.ExtraWinRules, state.EmptiedHand)
	}

	s := &GameService{
		rooms:    rooms,
		engine:   state.NewEngine(rules),
		opts:     opts,
		recorder: opts.Recorder,
		master:   randutil.New(seed),
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

func (s *GameService) nextSeed() int64 {
	s.rngMutex.Lock()
	defer s.rngMutex.Unlock()
	return int64(s.master.IntN(1<<62)) + 1
}

func (s *GameService) rngFor(roomID string) randutil.Source {
	if v, ok := s.rngs.Load(roomID); ok {
		return v.(*roomRNG).src
	}
	v, _ := s.rngs.LoadOrStore(roomID, &roomRNG{src: randutil.New(s.nextSeed())})
	return v.(*roomRNG).src
}

// Forget drops per-room state once a room is removed from the registry.
func (s *GameService) Forget(roomID string) {
	s.rngs.Delete(roomID)
}

// CreateRoom validates the request and registers a new SETUP room.
func (s *GameService) CreateRoom(ctx context.Context, name string, maxPlayers int, roomID string) (r *models.GameRoom, err error) {
	defer func() { s.recorder.ObserveOperation(OpCreateRoom, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "room name is required")
	}
	if maxPlayers == 0 {
		maxPlayers = s.opts.DefaultMaxPlayers
	}
	if maxPlayers < state.MinPlayers || maxPlayers > 4 {
		return nil, apperr.Newf(apperr.KindInvalidRequest, "maxPlayers must be between %d and 4", state.MinPlayers)
	}
	if roomID == "" {
		roomID = uuid.NewString()
	}

	gr := models.NewGameRoom(roomID, name, maxPlayers, s.opts.Clock.Now().UTC())
	live, err := s.rooms.CreateRoom(gr)
	if err != nil {
		return nil, err
	}
	s.rngFor(roomID)
	logger.Log.Infof("room %s (%s) created, capacity %d", roomID, name, maxPlayers)
	return live.Snapshot(), nil
}

// ListRooms returns lobby summaries ordered by creation time.
func (s *GameService) ListRooms() []models.RoomSummary {
	rooms := s.rooms.List()
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot().Summary())
	}
	return out
}

// GetRoom returns the latest snapshot of a room.
func (s *GameService) GetRoom(roomID string) (*models.GameRoom, error) {
	r, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return r.Snapshot(), nil
}

// JoinRoom adds a player bound to sessionToken, or returns the player already
// bound to it.
func (s *GameService) JoinRoom(ctx context.Context, roomID, playerName, sessionToken string) (res JoinResult, err error) {
	defer func() { s.recorder.ObserveOperation(OpJoinRoom, err) }()

	if sessionToken == "" {
		return JoinResult{}, apperr.New(apperr.KindInvalidRequest, "session token is required")
	}
	if bound, ok := s.rooms.FindBySession(sessionToken); ok && bound.GetID() != roomID {
		// one running game per session
		if snap := bound.Snapshot(); snap.IsStarted && snap.State.Phase != models.PhaseGameOver {
			return JoinResult{}, apperr.Newf(apperr.KindInvalidRequest, "session already plays in room %s", snap.ID)
		}
	}
	req := state.JoinRequest{
		PlayerID:     uuid.NewString(),
		Name:         strings.TrimSpace(playerName),
		SessionToken: sessionToken,
	}
	var playerID string
	committed, err := s.mutate(ctx, roomID, func(gr *models.GameRoom, rng randutil.Source) ([]room.Event, error) {
		p, created, err := s.engine.Join(gr, req, rng)
		if err != nil {
			return nil, err
		}
		playerID = p.ID
		if !created {
			return nil, nil
		}
		return []room.Event{{Name: room.EventRoomUpdated}}, nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	s.rooms.Bind(sessionToken, roomID)

	p, _ := committed.State.Player(playerID)
	return JoinResult{Player: p, Room: committed}, nil
}

// Reconnect moves the player bound to oldToken onto newToken.
func (s *GameService) Reconnect(ctx context.Context, oldToken, newToken string) (res JoinResult, err error) {
	defer func() { s.recorder.ObserveOperation(OpReconnect, err) }()

	if oldToken == "" || newToken == "" {
		return JoinResult{}, apperr.New(apperr.KindInvalidRequest, "both session tokens are required")
	}
	live, ok := s.rooms.FindBySession(oldToken)
	if !ok {
		return JoinResult{}, apperr.New(apperr.KindPlayerNotFound, "no player for session")
	}

	var playerID string
	committed, err := s.mutate(ctx, live.GetID(), func(gr *models.GameRoom, _ randutil.Source) ([]room.Event, error) {
		p, err := s.engine.Rebind(gr, oldToken, newToken)
		if err != nil {
			return nil, err
		}
		playerID = p.ID
		if oldToken == newToken {
			return nil, nil
		}
		return []room.Event{{Name: room.EventRoomUpdated}}, nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	if oldToken != newToken {
		s.rooms.Unbind(oldToken)
	}
	s.rooms.Bind(newToken, live.GetID())

	p, _ := committed.State.Player(playerID)
	return JoinResult{Player: p, Room: committed}, nil
}

// FindBySession resolves a session token to its room and player ids.
func (s *GameService) FindBySession(token string) (roomID, playerID string, ok bool) {
	live, ok := s.rooms.FindBySession(token)
	if !ok {
		return "", "", false
	}
	p, ok := live.Snapshot().State.PlayerBySession(token)
	if !ok {
		return "", "", false
	}
	return live.GetID(), p.ID, true
}

// StartGame deals the first round.
func (s *GameService) StartGame(ctx context.Context, roomID string) (r *models.GameRoom, err error) {
	defer func() { s.recorder.ObserveOperation(OpStartGame, err) }()

	r, err = s.mutate(ctx, roomID, func(gr *models.GameRoom, rng randutil.Source) ([]room.Event, error) {
		if err := s.engine.StartGame(gr, rng); err != nil {
			return nil, err
		}
		return []room.Event{{Name: room.EventGameStarted}}, nil
	})
	if err == nil {
		logger.Log.Infof("room %s started with %d players", roomID, len(r.State.Players))
	}
	return r, err
}

// MakeMove plays cards for playerID.
func (s *GameService) MakeMove(ctx context.Context, roomID, playerID string, claim models.Claim, cardIDs []int) (r *models.GameRoom, err error) {
	defer func() { s.recorder.ObserveOperation(OpMakeMove, err) }()

	ids := append([]int(nil), cardIDs...)
	return s.mutate(ctx, roomID, func(gr *models.GameRoom, _ randutil.Source) ([]room.Event, error) {
		if err := s.engine.MakeMove(gr.State, playerID, claim, ids); err != nil {
			return nil, err
		}
		return []room.Event{{Name: room.EventGameStateUpdated}}, nil
	})
}

// CallLiar challenges the last move.
func (s *GameService) CallLiar(ctx context.Context, roomID, callerID string) (res ChallengeResult, err error) {
	defer func() { s.recorder.ObserveOperation(OpCallLiar, err) }()

	var ch state.Challenge
	r, err := s.mutate(ctx, roomID, func(gr *models.GameRoom, _ randutil.Source) ([]room.Event, error) {
		var err error
		ch, err = s.engine.CallLiar(gr.State, callerID)
		if err != nil {
			return nil, err
		}
		return []room.Event{{Name: room.EventLiarResult, Data: ch}}, nil
	})
	if err != nil {
		return ChallengeResult{}, err
	}
	return ChallengeResult{Room: r, Challenge: ch}, nil
}

// TriggerRoulette pulls the trigger for the current player. playerID may be
// empty; when set it must be the current player.
func (s *GameService) TriggerRoulette(ctx context.Context, roomID, playerID string) (res RouletteResult, err error) {
	defer func() { s.recorder.ObserveOperation(OpTriggerRoulette, err) }()

	var out state.RouletteOutcome
	r, err := s.mutate(ctx, roomID, func(gr *models.GameRoom, rng randutil.Source) ([]room.Event, error) {
		var err error
		out, err = s.engine.TriggerRoulette(gr.State, playerID, rng)
		if err != nil {
			return nil, err
		}
		return []room.Event{{Name: room.EventRouletteResult, Data: out}}, nil
	})
	if err != nil {
		return RouletteResult{}, err
	}
	if out.Eliminated {
		s.recorder.IncEliminations()
	}
	if out.WinnerID != "" {
		s.recorder.IncGamesFinished()
		logger.Log.Infof("room %s finished, winner %s", roomID, out.WinnerID)
	}
	return RouletteResult{Room: r, Outcome: out}, nil
}

// Subscribe registers subID for the room's updates.
func (s *GameService) Subscribe(ctx context.Context, roomID, subID string) (<-chan room.Update, error) {
	r, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return r.Subscribe(ctx, subID)
}

// Unsubscribe removes subID from the room. A missing room is not an error.
func (s *GameService) Unsubscribe(ctx context.Context, roomID, subID string) error {
	r, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil
	}
	err = r.Unsubscribe(ctx, subID)
	if err == room.ErrRoomClosed {
		return nil
	}
	return err
}

// CloseRoom removes a room from the registry and the store.
func (s *GameService) CloseRoom(roomID string) error {
	if !s.rooms.RemoveRoom(roomID) {
		return apperr.Newf(apperr.KindRoomNotFound, "room %s not found", roomID)
	}
	logger.Log.Infof("room %s closed", roomID)
	return nil
}

// Restore registers every room found in lister. Rooms that fail the invariant
// check are skipped.
func (s *GameService) Restore(lister RoomLister) (int, error) {
	stored, err := lister.ListRooms()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, gr := range stored {
		if err := state.Validate(gr.State); err != nil {
			logger.Log.Warnf("skip restoring room %s: %v", gr.ID, err)
			continue
		}
		if _, err := s.rooms.CreateRoom(gr); err != nil {
			logger.Log.Warnf("skip restoring room %s: %v", gr.ID, err)
			continue
		}
		s.rngFor(gr.ID)
		n++
	}
	return n, nil
}

type mutation func(gr *models.GameRoom, rng randutil.Source) ([]room.Event, error)

// mutate runs fn on the room's actor and checks the invariants of every change
// before it is committed. It returns the committed snapshot.
func (s *GameService) mutate(ctx context.Context, roomID string, fn mutation) (*models.GameRoom, error) {
	live, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	rng := s.rngFor(roomID)

	var committed *models.GameRoom
	err = live.Do(ctx, func(gr *models.GameRoom) ([]room.Event, error) {
		events, err := fn(gr, rng)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			if err := state.Validate(gr.State); err != nil {
				return nil, err
			}
		}
		committed = gr
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error) {}
func (nopRecorder) IncEliminations()               {}
func (nopRecorder) IncGamesFinished()              {}

// requestTimeout bounds how long a caller waits for its room.
const requestTimeout = 10 * time.Second

// WithTimeout derives the context the transport uses for one request.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout)
}
