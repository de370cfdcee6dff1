package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/persistence"
	"github.com/wfunc/liarsbar/room"
	"github.com/wfunc/liarsbar/state"
)

type fakeRecorder struct {
	mutex        sync.Mutex
	ops          map[string]int
	failures     map[string]int
	eliminations int
	finished     int
}

func (f *fakeRecorder) ObserveOperation(op string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.ops == nil {
		f.ops = map[string]int{}
		f.failures = map[string]int{}
	}
	f.ops[op]++
	if err != nil {
		f.failures[op]++
	}
}

func (f *fakeRecorder) IncEliminations() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.eliminations++
}

func (f *fakeRecorder) IncGamesFinished() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.finished++
}

func newService(t *testing.T, store *persistence.MemoryStore, opts Options) (*GameService, *room.Manager) {
	t.Helper()
	mgr := room.NewRoomManager(room.ManagerOptions{Store: store})
	t.Cleanup(mgr.Close)
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return NewGameService(mgr, opts), mgr
}

func TestCreateRoomValidation(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{DefaultMaxPlayers: 3})
	ctx := context.Background()

	r, err := svc.CreateRoom(ctx, "  Test ", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "Test", r.Name)
	assert.Equal(t, 3, r.Capacity)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.PhaseSetup, r.State.Phase)

	_, err = svc.CreateRoom(ctx, "", 4, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = svc.CreateRoom(ctx, "Big", 5, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	_, err = svc.CreateRoom(ctx, "Small", 1, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = svc.CreateRoom(ctx, "Fixed", 4, "fixed")
	require.NoError(t, err)
	_, err = svc.CreateRoom(ctx, "Fixed", 4, "fixed")
	assert.ErrorIs(t, err, apperr.ErrDuplicateRoomID)

	assert.Len(t, svc.ListRooms(), 2)
}

func TestJoinRoomAndReconnect(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{})
	ctx := context.Background()
	r, err := svc.CreateRoom(ctx, "Test", 2, "r1")
	require.NoError(t, err)

	res, err := svc.JoinRoom(ctx, r.ID, "Ann", "tok-a")
	require.NoError(t, err)
	assert.Equal(t, "Ann", res.Player.Name)
	assert.Len(t, res.Room.State.Players, 1)

	again, err := svc.JoinRoom(ctx, r.ID, "Ann", "tok-a")
	require.NoError(t, err)
	assert.Equal(t, res.Player.ID, again.Player.ID, "same token, same player")
	assert.Len(t, again.Room.State.Players, 1)

	roomID, playerID, ok := svc.FindBySession("tok-a")
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, res.Player.ID, playerID)

	_, err = svc.JoinRoom(ctx, r.ID, "Bob", "tok-b")
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, r.ID, "Cid", "tok-c")
	assert.ErrorIs(t, err, apperr.ErrRoomFull)
	_, err = svc.JoinRoom(ctx, "missing", "Cid", "tok-c")
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)

	rec, err := svc.Reconnect(ctx, "tok-a", "tok-a2")
	require.NoError(t, err)
	assert.Equal(t, res.Player.ID, rec.Player.ID)
	assert.Equal(t, "tok-a2", rec.Player.SessionToken)
	_, _, ok = svc.FindBySession("tok-a")
	assert.False(t, ok)
	_, playerID, ok = svc.FindBySession("tok-a2")
	require.True(t, ok)
	assert.Equal(t, res.Player.ID, playerID)

	_, err = svc.Reconnect(ctx, "unknown", "x")
	assert.ErrorIs(t, err, apperr.ErrPlayerNotFound)
}

func TestJoinSecondRoomWhilePlaying(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{})
	ctx := context.Background()
	first, err := svc.CreateRoom(ctx, "First", 2, "r1")
	require.NoError(t, err)
	second, err := svc.CreateRoom(ctx, "Second", 2, "r2")
	require.NoError(t, err)

	// joining elsewhere before the game starts is allowed
	_, err = svc.JoinRoom(ctx, first.ID, "Ann", "tok-a")
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, first.ID, "Bob", "tok-b")
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, second.ID, "Cid", "tok-c")
	require.NoError(t, err)

	_, err = svc.StartGame(ctx, first.ID)
	require.NoError(t, err)

	_, err = svc.JoinRoom(ctx, second.ID, "Ann", "tok-a")
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
	snap, err := svc.GetRoom(second.ID)
	require.NoError(t, err)
	assert.Len(t, snap.State.Players, 1)

	roomID, _, ok := svc.FindBySession("tok-a")
	require.True(t, ok)
	assert.Equal(t, first.ID, roomID)

	// rejoining the running room stays idempotent
	_, err = svc.JoinRoom(ctx, first.ID, "Ann", "tok-a")
	assert.NoError(t, err)
}

func TestGameFlowPublishesUpdates(t *testing.T) {
	rec := &fakeRecorder{}
	store := persistence.NewMemoryStore()
	svc, _ := newService(t, store, Options{Recorder: rec})
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "Test", 4, "r1")
	require.NoError(t, err)
	ids := map[string]string{}
	for _, name := range []string{"P1", "P2", "P3"} {
		res, err := svc.JoinRoom(ctx, "r1", name, "tok-"+name)
		require.NoError(t, err)
		ids[name] = res.Player.ID
	}

	updates, err := svc.Subscribe(ctx, "r1", "watcher")
	require.NoError(t, err)
	initial := <-updates
	assert.Len(t, initial.Room.State.Players, 3)

	started, err := svc.StartGame(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.PhasePlayerTurn, started.State.Phase)
	_, err = svc.StartGame(ctx, "r1")
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)

	p1 := started.State.Players[0]
	moved, err := svc.MakeMove(ctx, "r1", ids["P1"], models.Claim{Count: 1, Type: started.State.BaseCardType}, p1.Hand[:1])
	require.NoError(t, err)
	assert.Len(t, moved.State.Players[0].Hand, card.HandSize-1)
	assert.Len(t, p1.Hand, card.HandSize, "returned snapshots are never mutated")

	ch, err := svc.CallLiar(ctx, "r1", ids["P2"])
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRussianRoulette, ch.Room.State.Phase)

	roul, err := svc.TriggerRoulette(ctx, "r1", ch.Challenge.LoserID)
	require.NoError(t, err)
	assert.Equal(t, ch.Challenge.LoserID, roul.Outcome.PlayerID)

	var names []string
	var last uint64
	for len(names) < 4 {
		select {
		case u := <-updates:
			require.Greater(t, u.Seq, last)
			last = u.Seq
			for _, ev := range u.Events {
				names = append(names, ev.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing updates, got %v", names)
		}
	}
	assert.Equal(t, []string{room.EventGameStarted, room.EventGameStateUpdated, room.EventLiarResult, room.EventRouletteResult}, names)

	stored, err := store.LoadRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, roul.Room.State.RoundNumber, stored.State.RoundNumber)
	require.NoError(t, state.Validate(stored.State))

	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	assert.Equal(t, 3, rec.ops[OpJoinRoom])
	assert.Equal(t, 2, rec.ops[OpStartGame])
	assert.Equal(t, 1, rec.failures[OpStartGame])
	assert.Equal(t, 1, rec.ops[OpTriggerRoulette])
}

func TestMakeMoveErrorsAreNotPublished(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{})
	ctx := context.Background()
	_, err := svc.CreateRoom(ctx, "Test", 2, "r1")
	require.NoError(t, err)
	a, err := svc.JoinRoom(ctx, "r1", "Ann", "ta")
	require.NoError(t, err)
	b, err := svc.JoinRoom(ctx, "r1", "Bob", "tb")
	require.NoError(t, err)
	started, err := svc.StartGame(ctx, "r1")
	require.NoError(t, err)

	updates, err := svc.Subscribe(ctx, "r1", "watcher")
	require.NoError(t, err)
	<-updates

	_, err = svc.MakeMove(ctx, "r1", b.Player.ID, models.Claim{Count: 1, Type: started.State.BaseCardType}, started.State.Players[1].Hand[:1])
	assert.ErrorIs(t, err, apperr.ErrNotYourTurn)
	_, err = svc.MakeMove(ctx, "r1", a.Player.ID, models.Claim{Count: 1, Type: started.State.BaseCardType}, started.State.Players[1].Hand[:1])
	assert.ErrorIs(t, err, apperr.ErrInvalidCards)
	_, err = svc.TriggerRoulette(ctx, "r1", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)

	select {
	case u := <-updates:
		t.Fatalf("failed operations must not publish, got seq %d", u.Seq)
	case <-time.After(50 * time.Millisecond):
	}

	after, err := svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, started, after)
}

func TestRestoreAndClose(t *testing.T) {
	store := persistence.NewMemoryStore()
	svc, _ := newService(t, store, Options{})
	ctx := context.Background()
	_, err := svc.CreateRoom(ctx, "Kept", 2, "r1")
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, "r1", "Ann", "ta")
	require.NoError(t, err)

	broken := models.NewGameRoom("bad", "Broken", 2, time.Unix(5, 0))
	broken.State.Deck = broken.State.Deck[:3]
	require.NoError(t, store.SaveRoom(broken))

	// a running game where nobody is left standing and nobody holds the turn
	stranded := models.NewGameRoom("stranded", "Stranded", 2, time.Unix(6, 0))
	stranded.IsStarted = true
	stranded.State.Phase = models.PhasePlayerTurn
	ghost := &models.Player{ID: "ghost", Name: "Ghost", Hand: []int{}}
	ghost.Revolver.Chambers[2] = true
	stranded.State.Players = append(stranded.State.Players, ghost)
	require.NoError(t, store.SaveRoom(stranded))

	// a fresh process over the same store
	restored, _ := newService(t, store, Options{})
	n, err := restored.Restore(store)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r, err := restored.GetRoom("r1")
	require.NoError(t, err)
	assert.Len(t, r.State.Players, 1)
	_, playerID, ok := restored.FindBySession("ta")
	assert.True(t, ok)
	assert.Equal(t, r.State.Players[0].ID, playerID)
	_, err = restored.GetRoom("bad")
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)
	_, err = restored.GetRoom("stranded")
	assert.ErrorIs(t, err, apperr.ErrRoomNotFound)

	require.NoError(t, restored.CloseRoom("r1"))
	assert.ErrorIs(t, restored.CloseRoom("r1"), apperr.ErrRoomNotFound)
	_, err = store.LoadRoom("r1")
	assert.ErrorIs(t, err, persistence.ErrRecordNotFound)
}

func TestHandEmptyWinsOption(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{HandEmptyWins: true})
	assert.Len(t, svc.engine.Rules().ExtraWinRules, 1)

	plain, _ := newService(t, persistence.NewMemoryStore(), Options{})
	assert.Empty(t, plain.engine.Rules().ExtraWinRules)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	svc, _ := newService(t, persistence.NewMemoryStore(), Options{})
	ctx := context.Background()
	_, err := svc.CreateRoom(ctx, "Race", 4, "r1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mutex sync.Mutex
	joined, full := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.JoinRoom(ctx, "r1", "player", string(rune('a'+i)))
			mutex.Lock()
			defer mutex.Unlock()
			if err == nil {
				joined++
			} else if apperr.KindOf(err) == apperr.KindRoomFull {
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, joined)
	assert.Equal(t, 8, full)
	r, err := svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Len(t, r.State.Players, 4)
}
