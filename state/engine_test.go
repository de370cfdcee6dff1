package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/liarsbar/apperr"
	"github.com/wfunc/liarsbar/card"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/randutil"
)

// card ids: 1-6 QUEEN, 7-12 KING, 13-18 ACE, 19-20 JOKER

func loadedAt(i int) models.Revolver {
	var r models.Revolver
	r.Chambers[i] = true
	return r
}

func newStartedRoom(t *testing.T, e *Engine, players int, seed int64) (*models.GameRoom, randutil.Source) {
	t.Helper()
	rng := randutil.New(seed)
	room := models.NewGameRoom("r1", "Test", 4, time.Unix(0, 0))
	for i := 1; i <= players; i++ {
		_, created, err := e.Join(room, JoinRequest{
			PlayerID:     fmt.Sprintf("P%d", i),
			Name:         fmt.Sprintf("Player %d", i),
			SessionToken: fmt.Sprintf("s%d", i),
		}, rng)
		require.NoError(t, err)
		require.True(t, created)
	}
	require.NoError(t, e.StartGame(room, rng))
	return room, rng
}

// fixedTable builds a PLAYER_TURN state with explicit hands; every other card
// sits in the deck. The first player holds the turn.
func fixedTable(base card.Type, hands ...[]int) *models.GameState {
	gs := models.NewGameState()
	dealt := map[int]bool{}
	for i, h := range hands {
		for _, id := range h {
			dealt[id] = true
		}
		gs.Players = append(gs.Players, &models.Player{
			ID:       fmt.Sprintf("P%d", i+1),
			Name:     fmt.Sprintf("Player %d", i+1),
			Hand:     append([]int{}, h...),
			Revolver: loadedAt(5),
			IsActive: true,
		})
	}
	gs.Deck = gs.Deck[:0]
	for id := 1; id <= card.DeckSize; id++ {
		if !dealt[id] {
			gs.Deck = append(gs.Deck, id)
		}
	}
	gs.Phase = models.PhasePlayerTurn
	gs.BaseCardType = base
	gs.RoundNumber = 1
	setCurrent(gs, 0)
	return gs
}

func TestScenarioA_StartGame(t *testing.T) {
	e := NewEngine(DefaultRules())
	room, _ := newStartedRoom(t, e, 3, 1)
	gs := room.State

	assert.True(t, room.IsStarted)
	assert.Equal(t, models.PhasePlayerTurn, gs.Phase)
	for _, p := range gs.Players {
		assert.Len(t, p.Hand, card.HandSize)
	}
	assert.Len(t, gs.Deck, 5)
	assert.Empty(t, gs.DiscardPile)
	assert.True(t, gs.BaseCardType.IsBase())
	assert.True(t, gs.Players[0].IsCurrentTurn)
	assert.False(t, gs.Players[1].IsCurrentTurn)
	assert.Equal(t, 1, gs.RoundNumber)
	require.NoError(t, Validate(gs))
}

func TestScenarioB_MakeMove(t *testing.T) {
	e := NewEngine(DefaultRules())
	room, _ := newStartedRoom(t, e, 3, 2)
	gs := room.State
	p1 := gs.Players[0]
	played := append([]int{}, p1.Hand[:2]...)

	err := e.MakeMove(gs, "P1", models.Claim{Count: 2, Type: gs.BaseCardType}, played)
	require.NoError(t, err)

	assert.Len(t, p1.Hand, 3)
	require.NotNil(t, gs.LastMove)
	assert.Equal(t, "P1", gs.LastMove.PlayerID)
	assert.Equal(t, played, gs.LastMove.CardIDs)
	assert.Equal(t, played, gs.DiscardPile)
	assert.False(t, p1.IsCurrentTurn)
	assert.True(t, gs.Players[1].IsCurrentTurn)
	assert.Equal(t, 1, gs.CurrentPlayerIndex)
	require.NoError(t, Validate(gs))
}

func TestScenarioC_CallLiarOnBluff(t *testing.T) {
	e := NewEngine(DefaultRules())
	// P1 holds two QUEENs, the round is KING
	gs := fixedTable(card.King, []int{1, 2, 7, 13, 19}, []int{3, 8, 9, 14, 15}, []int{4, 10, 11, 16, 17})

	require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 2, Type: card.King}, []int{1, 2}))
	ch, err := e.CallLiar(gs, "P2")
	require.NoError(t, err)

	assert.False(t, ch.AllMatch)
	assert.Equal(t, "P1", ch.LoserID)
	assert.Equal(t, "P1", ch.MoverID)
	assert.Equal(t, []card.Type{card.Queen, card.Queen}, ch.RevealedTypes)
	assert.Equal(t, models.PhaseRussianRoulette, gs.Phase)
	assert.True(t, gs.Players[0].IsCurrentTurn)
	assert.False(t, gs.Players[1].IsCurrentTurn)
	require.NoError(t, Validate(gs))
}

func TestCallLiarJokerMatches(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.King, []int{7, 19, 1, 2, 3}, []int{8, 9, 13, 14, 15})

	require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 2, Type: card.King}, []int{7, 19}))
	ch, err := e.CallLiar(gs, "P2")
	require.NoError(t, err)

	assert.True(t, ch.AllMatch)
	assert.Equal(t, "P2", ch.LoserID, "an honest claim makes the caller lose")
	assert.Equal(t, []card.Type{card.King, card.Joker}, ch.RevealedTypes)
	assert.True(t, gs.Players[1].IsCurrentTurn)
}

func TestScenarioD_RouletteEndsGame(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.Ace, []int{1, 2}, []int{}, []int{3, 4})
	gs.Players[1].IsActive = false
	gs.Players[0].Revolver = loadedAt(0)
	gs.LastMove = &models.Move{PlayerID: "P1", DeclaredClaim: models.Claim{Count: 1, Type: card.Ace}, CardIDs: []int{5}}
	gs.Deck = removeInt(gs.Deck, 5)
	gs.DiscardPile = []int{5}
	gs.Phase = models.PhaseRussianRoulette
	require.NoError(t, Validate(gs))

	_, err := e.TriggerRoulette(gs, "P3", randutil.New(1))
	assert.ErrorIs(t, err, apperr.ErrNotYourTurn)
	_, err = e.TriggerRoulette(gs, "P9", randutil.New(1))
	assert.ErrorIs(t, err, apperr.ErrPlayerNotFound)

	out, err := e.TriggerRoulette(gs, "P1", randutil.New(1))
	require.NoError(t, err)

	assert.True(t, out.WillFire)
	assert.True(t, out.Eliminated)
	assert.Equal(t, "P3", out.WinnerID)
	assert.False(t, gs.Players[0].IsActive)
	assert.Equal(t, models.PhaseGameOver, gs.Phase)
	assert.Equal(t, "P3", gs.WinnerID)
	for _, p := range gs.Players {
		assert.False(t, p.IsCurrentTurn)
	}
	require.NoError(t, Validate(gs))
}

func TestScenarioE_InvalidCardsLeaveStateUnchanged(t *testing.T) {
	e := NewEngine(DefaultRules())
	room, _ := newStartedRoom(t, e, 3, 5)
	gs := room.State
	notMine := gs.Players[1].Hand[0]
	before := gs.Clone()

	err := e.MakeMove(gs, "P1", models.Claim{Count: 1, Type: gs.BaseCardType}, []int{notMine})
	assert.ErrorIs(t, err, apperr.ErrInvalidCards)
	assert.Equal(t, before, gs)
}

func TestRouletteSurvivalStartsNewRound(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.King, []int{1, 2, 7, 13, 19}, []int{3, 8, 9, 14, 15}, []int{4, 10, 11, 16, 17})
	gs.Players[0].Revolver = loadedAt(3)

	require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 2, Type: card.King}, []int{1, 2}))
	_, err := e.CallLiar(gs, "P2")
	require.NoError(t, err)

	out, err := e.TriggerRoulette(gs, "", randutil.New(9))
	require.NoError(t, err)
	assert.False(t, out.WillFire)
	assert.True(t, out.NewRound)
	assert.Equal(t, 0, out.Chamber)

	assert.Equal(t, models.PhasePlayerTurn, gs.Phase)
	assert.Equal(t, 2, gs.RoundNumber)
	assert.Equal(t, 1, gs.Players[0].Revolver.CurrentChamber)
	assert.Nil(t, gs.LastMove)
	assert.Empty(t, gs.DiscardPile)
	assert.True(t, gs.Players[1].IsCurrentTurn, "next round starts after the disputed mover")
	for _, p := range gs.Players {
		assert.Len(t, p.Hand, card.HandSize)
	}
	require.NoError(t, Validate(gs))
}

func TestEliminatedPlayerIsSkipped(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.King, []int{1, 2, 7, 13, 19}, []int{3, 8, 9, 14, 15}, []int{4, 10, 11, 16, 17})
	gs.Players[0].Revolver = loadedAt(0)

	require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 2, Type: card.King}, []int{1, 2}))
	_, err := e.CallLiar(gs, "P2")
	require.NoError(t, err)
	out, err := e.TriggerRoulette(gs, "", randutil.New(3))
	require.NoError(t, err)
	require.True(t, out.Eliminated)
	require.True(t, out.NewRound)

	assert.Empty(t, gs.Players[0].Hand, "eliminated players get no cards")
	assert.True(t, gs.Players[1].IsCurrentTurn)

	p2 := gs.Players[1]
	require.NoError(t, e.MakeMove(gs, "P2", models.Claim{Count: 1, Type: gs.BaseCardType}, p2.Hand[:1]))
	assert.True(t, gs.Players[2].IsCurrentTurn)

	p3 := gs.Players[2]
	require.NoError(t, e.MakeMove(gs, "P3", models.Claim{Count: 1, Type: gs.BaseCardType}, p3.Hand[:1]))
	assert.True(t, gs.Players[1].IsCurrentTurn, "turn wraps past the eliminated player")

	err = e.MakeMove(gs, "P1", models.Claim{Count: 1, Type: gs.BaseCardType}, []int{3})
	assert.ErrorIs(t, err, apperr.ErrNotYourTurn)
	require.NoError(t, Validate(gs))
}

func TestEmptiedHandRule(t *testing.T) {
	hands := [][]int{{7}, {3, 8, 9, 14, 15}, {4, 10, 11, 16, 17}}
	play := func(e *Engine) (*models.GameState, RouletteOutcome) {
		gs := fixedTable(card.King, hands...)
		gs.Players[1].Revolver = loadedAt(4)
		require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 1, Type: card.King}, []int{7}))
		ch, err := e.CallLiar(gs, "P2")
		require.NoError(t, err)
		require.Equal(t, "P2", ch.LoserID)
		out, err := e.TriggerRoulette(gs, "", randutil.New(4))
		require.NoError(t, err)
		require.NoError(t, Validate(gs))
		return gs, out
	}

	gs, out := play(NewEngine(DefaultRules()))
	assert.True(t, out.NewRound)
	assert.Equal(t, models.PhasePlayerTurn, gs.Phase)

	rules := DefaultRules()
	rules.ExtraWinRules = []WinRule{EmptiedHand}
	gs, out = play(NewEngine(rules))
	assert.False(t, out.NewRound)
	assert.Equal(t, "P1", out.WinnerID)
	assert.Equal(t, models.PhaseGameOver, gs.Phase)
}

func TestJoin(t *testing.T) {
	e := NewEngine(DefaultRules())
	rng := randutil.New(1)
	room := models.NewGameRoom("r1", "Test", 2, time.Unix(0, 0))

	p, created, err := e.Join(room, JoinRequest{PlayerID: "a", Name: "Ann", SessionToken: "s1"}, rng)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, p.IsActive)
	assert.Empty(t, p.Hand)
	assert.Equal(t, 1, p.Revolver.LoadedCount())

	again, created, err := e.Join(room, JoinRequest{PlayerID: "other", Name: "Ann", SessionToken: "s1"}, rng)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a", again.ID)
	assert.Len(t, room.Players(), 1)

	_, _, err = e.Join(room, JoinRequest{PlayerID: "b", Name: " ", SessionToken: "s2"}, rng)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, _, err = e.Join(room, JoinRequest{PlayerID: "b", Name: "Bob", SessionToken: "s2"}, rng)
	require.NoError(t, err)
	_, _, err = e.Join(room, JoinRequest{PlayerID: "c", Name: "Cid", SessionToken: "s3"}, rng)
	assert.ErrorIs(t, err, apperr.ErrRoomFull)

	require.NoError(t, e.StartGame(room, rng))
	room.Capacity = 4
	_, _, err = e.Join(room, JoinRequest{PlayerID: "c", Name: "Cid", SessionToken: "s3"}, rng)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)

	// a known session still reconnects after the start
	again, created, err = e.Join(room, JoinRequest{Name: "Bob", SessionToken: "s2"}, rng)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "b", again.ID)
}

func TestRebind(t *testing.T) {
	e := NewEngine(DefaultRules())
	room := models.NewGameRoom("r1", "Test", 2, time.Unix(0, 0))
	_, _, err := e.Join(room, JoinRequest{PlayerID: "a", Name: "Ann", SessionToken: "old"}, randutil.New(1))
	require.NoError(t, err)

	p, err := e.Rebind(room, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", p.SessionToken)

	_, err = e.Rebind(room, "old", "newer")
	assert.ErrorIs(t, err, apperr.ErrPlayerNotFound)
}

func TestStartGameErrors(t *testing.T) {
	e := NewEngine(DefaultRules())
	rng := randutil.New(1)
	room := models.NewGameRoom("r1", "Test", 4, time.Unix(0, 0))

	assert.ErrorIs(t, e.StartGame(room, rng), apperr.ErrInsufficientPlayers)
	_, _, err := e.Join(room, JoinRequest{PlayerID: "a", Name: "Ann", SessionToken: "s1"}, rng)
	require.NoError(t, err)
	assert.ErrorIs(t, e.StartGame(room, rng), apperr.ErrInsufficientPlayers)
	assert.Equal(t, models.PhaseSetup, room.State.Phase)

	_, _, err = e.Join(room, JoinRequest{PlayerID: "b", Name: "Bob", SessionToken: "s2"}, rng)
	require.NoError(t, err)
	require.NoError(t, e.StartGame(room, rng))
	assert.ErrorIs(t, e.StartGame(room, rng), apperr.ErrInvalidPhase)
}

func TestMakeMoveErrors(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.King, []int{1, 2, 7, 8, 19}, []int{3, 9, 10, 14, 15})
	base := models.Claim{Count: 1, Type: card.King}

	cases := []struct {
		name   string
		player string
		claim  models.Claim
		ids    []int
		want   error
	}{
		{"unknown player", "P9", base, []int{7}, apperr.ErrPlayerNotFound},
		{"not your turn", "P2", base, []int{9}, apperr.ErrNotYourTurn},
		{"no cards", "P1", models.Claim{Count: 0, Type: card.King}, nil, apperr.ErrInvalidCards},
		{"too many", "P1", models.Claim{Count: 4, Type: card.King}, []int{1, 2, 7, 8}, apperr.ErrInvalidCards},
		{"duplicate", "P1", models.Claim{Count: 2, Type: card.King}, []int{7, 7}, apperr.ErrInvalidCards},
		{"count mismatch", "P1", models.Claim{Count: 2, Type: card.King}, []int{7}, apperr.ErrInvalidCards},
		{"wrong type", "P1", models.Claim{Count: 1, Type: card.Queen}, []int{1}, apperr.ErrInvalidCards},
		{"joker claim", "P1", models.Claim{Count: 1, Type: card.Joker}, []int{19}, apperr.ErrInvalidCards},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := gs.Clone()
			err := e.MakeMove(gs, tc.player, tc.claim, tc.ids)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, gs)
		})
	}

	gs.Phase = models.PhaseRussianRoulette
	assert.ErrorIs(t, e.MakeMove(gs, "P1", base, []int{7}), apperr.ErrInvalidPhase)
}

func TestCallLiarErrors(t *testing.T) {
	e := NewEngine(DefaultRules())
	gs := fixedTable(card.King, []int{1, 2, 7, 8, 19}, []int{3, 9, 10, 14, 15}, []int{4, 11, 12, 16, 17})

	_, err := e.CallLiar(gs, "P1")
	assert.ErrorIs(t, err, apperr.ErrNoPendingMove)
	_, err = e.CallLiar(gs, "P9")
	assert.ErrorIs(t, err, apperr.ErrPlayerNotFound)

	require.NoError(t, e.MakeMove(gs, "P1", models.Claim{Count: 1, Type: card.King}, []int{7}))
	before := gs.Clone()

	_, err = e.CallLiar(gs, "P1")
	assert.ErrorIs(t, err, apperr.ErrIllegalChallenger, "the mover cannot challenge themselves")
	_, err = e.CallLiar(gs, "P3")
	assert.ErrorIs(t, err, apperr.ErrIllegalChallenger, "only the next player may challenge")
	assert.Equal(t, before, gs)

	_, err = e.TriggerRoulette(gs, "", randutil.New(1))
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)
}

// TestRandomPlayoutsKeepInvariants drives many games with random legal and
// illegal actions and checks the invariants after every step.
func TestRandomPlayoutsKeepInvariants(t *testing.T) {
	rules := DefaultRules()
	rules.ExtraWinRules = []WinRule{EmptiedHand}

	for seed := int64(1); seed <= 200; seed++ {
		e := NewEngine(rules)
		if seed%2 == 0 {
			e = NewEngine(DefaultRules())
		}
		players := 2 + int(seed%3)
		room, rng := newStartedRoom(t, e, players, seed)
		gs := room.State
		policy := randutil.New(seed * 31)

		steps := 0
		for gs.Phase != models.PhaseGameOver {
			steps++
			require.Less(t, steps, 5000, "seed %d did not terminate", seed)

			// an illegal move never changes anything
			before := gs.Clone()
			wrong := ""
			for _, p := range gs.Players {
				if !p.IsCurrentTurn {
					wrong = p.ID
					break
				}
			}
			_, err := e.CallLiar(gs, wrong)
			require.Error(t, err)
			require.Equal(t, before, gs)

			cur, ok := gs.CurrentPlayer()
			require.True(t, ok)

			revolvers := make(map[string]models.Revolver, len(gs.Players))
			for _, p := range gs.Players {
				revolvers[p.ID] = p.Revolver
			}
			var shot RouletteOutcome

			switch gs.Phase {
			case models.PhasePlayerTurn:
				canCall := gs.LastMove != nil
				if canCall && (len(cur.Hand) == 0 || policy.IntN(3) == 0) {
					_, err = e.CallLiar(gs, cur.ID)
				} else {
					n := 1 + policy.IntN(min(len(cur.Hand), card.MaxPerMove))
					ids := append([]int{}, cur.Hand[:n]...)
					err = e.MakeMove(gs, cur.ID, models.Claim{Count: n, Type: gs.BaseCardType}, ids)
				}
			case models.PhaseRussianRoulette:
				shot, err = e.TriggerRoulette(gs, cur.ID, rng)
			}
			require.NoError(t, err, "seed %d step %d", seed, steps)
			require.NoError(t, Validate(gs), "seed %d step %d", seed, steps)
			require.Equal(t, card.DeckSize, gs.CardCount())

			// the trigger only moves forward, one chamber per survived pull
			for _, p := range gs.Players {
				prev := revolvers[p.ID]
				require.Equal(t, prev.Chambers, p.Revolver.Chambers, "seed %d step %d player %s", seed, steps, p.ID)
				want := prev.CurrentChamber
				if shot.PlayerID == p.ID && !shot.Eliminated {
					want++
				}
				require.Equal(t, want, p.Revolver.CurrentChamber, "seed %d step %d player %s", seed, steps, p.ID)
			}
		}

		winner, ok := gs.Player(gs.WinnerID)
		require.True(t, ok)
		assert.True(t, winner.IsActive)
	}
}

func removeInt(list []int, v int) []int {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
