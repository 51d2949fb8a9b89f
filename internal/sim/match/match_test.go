package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/maze"
)

func lineMaze(t *testing.T, n int) *maze.Maze {
	t.Helper()
	m := maze.New(n, 1)
	for v := 0; v+1 < n; v++ {
		if err := m.AddEdge(v, v+1, 1); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return m
}

func repeat(a game.Action, n int) []game.Action {
	out := make([]game.Action, n)
	for i := range out {
		out[i] = a
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	renders []int
	ends    int
}

func (r *recorder) Render(_ []string, _ game.Grid, s *game.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, s.Turn)
}

func (r *recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends++
}

// scripted lets a test decide per turn what the agent does.
type scripted struct {
	agent.Base
	calls atomic.Int32
	turn  func(ctx context.Context, s *game.State) (game.Action, error)
}

func (a *scripted) Turn(ctx context.Context, _ game.Grid, s *game.State) (game.Action, error) {
	a.calls.Add(1)
	return a.turn(ctx, s)
}

func newMatch(t *testing.T, g game.Grid, cfg Config, opts ...Option) *Match {
	t.Helper()
	m, err := New(g, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func mustAdd(t *testing.T, m *Match, a agent.Agent, team string, loc Location) {
	t.Helper()
	if err := m.AddPlayer(a, team, loc); err != nil {
		t.Fatalf("AddPlayer(%s): %v", a.Name(), err)
	}
}

func TestRun_SingleAgentEatsCheese(t *testing.T) {
	rec := &recorder{}
	m := newMatch(t, lineMaze(t, 3), Config{Mode: game.ModeSequential}, WithPresenter(rec))
	mustAdd(t, m, agent.NewFixed("rat", []game.Action{game.ActionEast}), "", AtCell(0))
	if err := m.PlaceCheese([]int{1}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ps := stats.Players["rat"]
	if ps.Actions[game.StatEast] != 1 || ps.Score.RatString() != "1" || stats.Turns != 1 {
		t.Fatalf("stats=%+v actions=%v", stats, ps.Actions)
	}
	if ps.PreprocessingDuration == nil || len(ps.TurnDurations) != 1 {
		t.Fatalf("durations not recorded: %+v", ps)
	}
	if rec.ends != 1 || len(rec.renders) != 3 {
		t.Fatalf("renders=%v ends=%d", rec.renders, rec.ends)
	}
	if h := m.History()["rat"]; len(h) != 1 || h[0] != game.ActionEast {
		t.Fatalf("history=%v", h)
	}
}

func TestRun_MudSkipsDecisions(t *testing.T) {
	g := maze.New(2, 1)
	if err := g.AddEdge(0, 1, 3); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	a := &scripted{Base: agent.Base{PlayerName: "a"}, turn: func(context.Context, *game.State) (game.Action, error) {
		return game.ActionEast, nil
	}}
	m := newMatch(t, g, Config{Mode: game.ModeSynchronous})
	mustAdd(t, m, a, "", AtCell(0))
	if err := m.PlaceCheese([]int{1}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := a.calls.Load(); got != 1 {
		t.Fatalf("agent asked %d times, want 1", got)
	}
	acts := stats.Players["a"].Actions
	if acts[game.StatEast] != 1 || acts[game.StatMud] != 3 {
		t.Fatalf("actions=%v", acts)
	}
	if h := m.History()["a"]; len(h) != 1 {
		t.Fatalf("history includes mud turns: %v", h)
	}
	if m.State().PlayerLocations["a"] != 1 {
		t.Fatalf("player did not cross the mud")
	}
}

func TestRun_CrashWithContinueOnError(t *testing.T) {
	crasher := &scripted{Base: agent.Base{PlayerName: "crasher"}, turn: func(_ context.Context, s *game.State) (game.Action, error) {
		if s.Turn >= 5 {
			panic("boom")
		}
		return game.ActionNothing, nil
	}}
	m := newMatch(t, lineMaze(t, 10), Config{Mode: game.ModeSynchronous, ContinueOnError: true})
	mustAdd(t, m, crasher, "a", AtCell(0))
	mustAdd(t, m, agent.NewFixed("walker", repeat(game.ActionEast, 8)), "b", AtCell(1))
	if err := m.PlaceCheese([]int{9}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c := stats.Players["crasher"].Actions
	if c[game.StatError] != 4 || c[game.StatNothing] != 4 {
		t.Fatalf("crasher actions=%v", c)
	}
	w := stats.Players["walker"]
	if w.Actions[game.StatEast] != 8 || w.Score.RatString() != "1" {
		t.Fatalf("walker=%+v", w)
	}
}

func TestRun_CrashAbortsWithoutContinueOnError(t *testing.T) {
	rec := &recorder{}
	crasher := &scripted{Base: agent.Base{PlayerName: "crasher"}, turn: func(context.Context, *game.State) (game.Action, error) {
		return game.ActionNothing, errors.New("bad state")
	}}
	m := newMatch(t, lineMaze(t, 4), Config{Mode: game.ModeSequential}, WithPresenter(rec))
	mustAdd(t, m, crasher, "", AtCell(0))
	if err := m.PlaceCheese([]int{3}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if !errors.Is(err, ErrMatchAborted) {
		t.Fatalf("err=%v want ErrMatchAborted", err)
	}
	if stats != nil {
		t.Fatalf("stats must be discarded on abort")
	}
	if rec.ends != 1 {
		t.Fatalf("End called %d times", rec.ends)
	}
}

func TestRun_InvalidActionIsAnError(t *testing.T) {
	m := newMatch(t, lineMaze(t, 3), Config{Mode: game.ModeSequential, ContinueOnError: true})
	mustAdd(t, m, agent.NewFixed("p", []game.Action{"jump", game.ActionEast}), "", AtCell(0))
	if err := m.PlaceCheese([]int{1}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	a := stats.Players["p"].Actions
	if a[game.StatError] != 1 || a[game.StatEast] != 1 {
		t.Fatalf("actions=%v", a)
	}
}

func TestRun_MissBenchesPlayer(t *testing.T) {
	slow := &scripted{Base: agent.Base{PlayerName: "slow"}, turn: func(ctx context.Context, s *game.State) (game.Action, error) {
		if s.Turn == 2 {
			<-ctx.Done()
		}
		return game.ActionNothing, nil
	}}
	cfg := Config{Mode: game.ModeStandard, PreprocessingTime: 50 * time.Millisecond, TurnTime: 50 * time.Millisecond, ContinueOnError: true}
	m := newMatch(t, lineMaze(t, 6), cfg)
	mustAdd(t, m, slow, "a", AtCell(0))
	mustAdd(t, m, agent.NewFixed("walker", repeat(game.ActionEast, 4)), "b", AtCell(1))
	if err := m.PlaceCheese([]int{5}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := stats.Players["slow"]
	if s.Actions[game.StatMiss] != 1 || s.Actions[game.StatNothing] != 1 {
		t.Fatalf("slow actions=%v", s.Actions)
	}
	if got := slow.calls.Load(); got != 2 {
		t.Fatalf("slow asked %d times after its miss", got)
	}
	if s.Score.Sign() != 0 {
		t.Fatalf("benched score changed: %s", s.Score.RatString())
	}
	if w := stats.Players["walker"]; w.Actions[game.StatEast] != 4 || w.Score.RatString() != "1" {
		t.Fatalf("walker=%+v", w)
	}
}

func TestRun_ZeroTurnTimeMissesSlowAgent(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	a := &scripted{Base: agent.Base{PlayerName: "a"}, turn: func(context.Context, *game.State) (game.Action, error) {
		<-block
		return game.ActionEast, nil
	}}
	cfg := Config{Mode: game.ModeStandard, PreprocessingTime: 50 * time.Millisecond}
	m := newMatch(t, lineMaze(t, 3), cfg)
	mustAdd(t, m, a, "", AtCell(0))
	if err := m.PlaceCheese([]int{2}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := stats.Players["a"].Actions[game.StatMiss]; got != 1 {
		t.Fatalf("miss=%d want 1", got)
	}
	if len(m.State().Cheese) != 1 {
		t.Fatalf("benched player collected cheese")
	}
}

func TestRun_SimulationSkipsPresenterAndTimes(t *testing.T) {
	rec := &recorder{}
	cfg := Config{Mode: game.ModeSimulation, TurnTime: time.Hour, PreprocessingTime: time.Hour}
	m := newMatch(t, lineMaze(t, 3), cfg, WithPresenter(rec))
	if c := m.Config(); c.TurnTime != 0 || c.PreprocessingTime != 0 {
		t.Fatalf("simulation kept budgets: %+v", c)
	}
	mustAdd(t, m, agent.NewGreedy("g"), "", AtCell(0))
	if err := m.PlaceCheese([]int{2}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.renders) != 0 || rec.ends != 0 {
		t.Fatalf("presenter used in simulation: %v %d", rec.renders, rec.ends)
	}
}

func TestRun_HistoryReplaysToSameDigest(t *testing.T) {
	g, err := maze.Random(maze.Params{Width: 8, Height: 6, CellPercentage: 100, WallPercentage: 40, MudPercentage: 20, MudRange: [2]int{2, 3}, Seed: 3})
	if err != nil {
		t.Fatalf("maze: %v", err)
	}
	play := func(a, b agent.Agent) *Match {
		m := newMatch(t, g, Config{Mode: game.ModeSynchronous})
		mustAdd(t, m, a, "x", AtCell(0))
		mustAdd(t, m, b, "y", AtCell(47))
		if err := m.ScatterCheese(6, 11); err != nil {
			t.Fatalf("ScatterCheese: %v", err)
		}
		if _, err := m.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return m
	}
	first := play(agent.NewGreedy("a"), agent.NewRandom("b", 5))
	h := first.History()
	replay := play(agent.NewFixed("a", h["a"]), agent.NewFixed("b", h["b"]))
	if first.State().Digest() != replay.State().Digest() {
		t.Fatalf("replay diverged")
	}
}

func TestAddPlayer_RejectsDuplicates(t *testing.T) {
	m := newMatch(t, lineMaze(t, 3), Config{})
	mustAdd(t, m, agent.NewGreedy("p"), "", AtCenter())
	err := m.AddPlayer(agent.NewGreedy("p"), "", AtCenter())
	if !errors.Is(err, ErrDuplicatePlayer) {
		t.Fatalf("err=%v want ErrDuplicatePlayer", err)
	}
}

func TestAddPlayer_Locations(t *testing.T) {
	g := maze.New(5, 5)
	for _, v := range []int{0, 1, 2, 4} {
		if err := g.AddVertex(v); err != nil {
			t.Fatalf("AddVertex: %v", err)
		}
	}
	m := newMatch(t, g, Config{}, WithPlayerSeed(4))
	mustAdd(t, m, agent.NewGreedy("center"), "", AtCenter())
	mustAdd(t, m, agent.NewGreedy("same"), "", AtPrevious())
	mustAdd(t, m, agent.NewGreedy("cell"), "", AtCell(9))
	mustAdd(t, m, agent.NewGreedy("rnd"), "", AtRandom())
	locs := m.State().PlayerLocations
	// Centre (2,2) is missing; cell 2 at (0,2) is the closest.
	if locs["center"] != 2 || locs["same"] != 2 {
		t.Fatalf("locations=%v", locs)
	}
	// Cell 9 at (1,4) is missing; cell 4 at (0,4) is the closest.
	if locs["cell"] != 4 {
		t.Fatalf("cell fallback=%d want 4", locs["cell"])
	}
	if !g.Exists(locs["rnd"]) {
		t.Fatalf("random location %d not in maze", locs["rnd"])
	}
	if err := m.AddPlayer(agent.NewGreedy("out"), "", AtCell(25)); err == nil {
		t.Fatalf("expected error for cell outside the maze")
	}
}

func TestCheesePlacement(t *testing.T) {
	m := newMatch(t, lineMaze(t, 6), Config{})
	mustAdd(t, m, agent.NewGreedy("p"), "", AtCell(0))
	for _, bad := range [][]int{{1, 1}, {0}, {9}} {
		if err := m.PlaceCheese(bad); err == nil {
			t.Fatalf("PlaceCheese(%v) accepted", bad)
		}
	}
	if err := m.ScatterCheese(6, 1); err == nil {
		t.Fatalf("more cheese than free cells accepted")
	}
	if err := m.ScatterCheese(5, 1); err != nil {
		t.Fatalf("ScatterCheese: %v", err)
	}
	if m.State().HasCheese(0) || len(m.State().Cheese) != 5 {
		t.Fatalf("cheese=%v", m.State().Cheese)
	}
	if err := m.AddPlayer(agent.NewGreedy("late"), "", AtCell(1)); err == nil {
		t.Fatalf("player added after cheese")
	}
}

func TestParseLocation(t *testing.T) {
	for in, want := range map[string]Location{"": AtCenter(), "random": AtRandom(), "Same": AtPrevious(), "12": AtCell(12)} {
		got, err := ParseLocation(in)
		if err != nil || got != want {
			t.Fatalf("ParseLocation(%q)=%v,%v want %v", in, got, err, want)
		}
	}
	if _, err := ParseLocation("corner"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRoundGate_ReleasesWholeGeneration(t *testing.T) {
	g := newRoundGate(3)
	for round := 0; round < 3; round++ {
		a := g.arrive()
		b := g.arrive()
		select {
		case <-a:
			t.Fatalf("released before the last arrival")
		default:
		}
		g.standIn(1)
		<-a
		<-b
	}
}

func TestRun_TurnLimitStopsEarly(t *testing.T) {
	m := newMatch(t, lineMaze(t, 3), Config{Mode: game.ModeSequential}, WithTurnLimit(2))
	mustAdd(t, m, agent.NewFixed("idle", nil), "", AtCell(0))
	if err := m.PlaceCheese([]int{2}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Turns != 2 || len(m.History()["idle"]) != 2 {
		t.Fatalf("turns=%d history=%v", stats.Turns, m.History()["idle"])
	}
}

// countingClock runs on wall time and records every budget it is asked to
// wait out.
type countingClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *countingClock) Now() time.Time { return time.Now() }

func (c *countingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return realClock{}.Sleep(ctx, d)
}

func (c *countingClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestRun_EveryModeWaitsOutTheBudget(t *testing.T) {
	const (
		pre  = 40 * time.Millisecond
		turn = 20 * time.Millisecond
	)
	for _, mode := range []game.Mode{game.ModeStandard, game.ModeSynchronous, game.ModeSequential, game.ModeSimulation} {
		t.Run(string(mode), func(t *testing.T) {
			clock := &countingClock{}
			cfg := Config{Mode: mode, PreprocessingTime: pre, TurnTime: turn}
			m := newMatch(t, lineMaze(t, 4), cfg, WithClock(clock))
			mustAdd(t, m, agent.NewFixed("rat", repeat(game.ActionEast, 3)), "", AtCell(0))
			if err := m.PlaceCheese([]int{3}); err != nil {
				t.Fatalf("PlaceCheese: %v", err)
			}
			stats, err := m.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if stats.Turns != 3 {
				t.Fatalf("turns=%d want 3", stats.Turns)
			}
			if miss := stats.Players["rat"].Actions[game.StatMiss]; miss != 0 {
				t.Fatalf("miss=%d want 0", miss)
			}

			got := clock.recorded()
			if len(got) != 4 {
				t.Fatalf("sleeps=%v want one per decision round", got)
			}
			want := []time.Duration{pre, turn, turn, turn}
			if mode == game.ModeSimulation {
				want = []time.Duration{0, 0, 0, 0}
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("sleep %d=%v want %v (all %v)", i, got[i], want[i], got)
				}
			}
		})
	}
}

func TestRun_StandardMudMixesWithDecisionsAndMisses(t *testing.T) {
	g := maze.New(3, 1)
	if err := g.AddEdge(0, 1, 3); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge(1, 2, 1); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	a := &scripted{Base: agent.Base{PlayerName: "a"}, turn: func(context.Context, *game.State) (game.Action, error) {
		return game.ActionEast, nil
	}}
	slow := &scripted{Base: agent.Base{PlayerName: "slow"}, turn: func(ctx context.Context, s *game.State) (game.Action, error) {
		if s.Turn == 2 {
			<-ctx.Done()
		}
		return game.ActionNothing, nil
	}}
	cfg := Config{Mode: game.ModeStandard, PreprocessingTime: 50 * time.Millisecond, TurnTime: 50 * time.Millisecond, ContinueOnError: true}
	m := newMatch(t, g, cfg)
	mustAdd(t, m, a, "x", AtCell(0))
	mustAdd(t, m, slow, "y", AtCell(2))
	mustAdd(t, m, agent.NewFixed("idle", nil), "y", AtCell(2))
	if err := m.PlaceCheese([]int{1}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	acts := stats.Players["a"].Actions
	if acts[game.StatMud] != 3 || acts[game.StatMiss] != 0 || acts[game.StatEast] != 1 {
		t.Fatalf("a actions=%v", acts)
	}
	if got := a.calls.Load(); got != 1 {
		t.Fatalf("a asked %d times, want 1", got)
	}
	if m.State().PlayerLocations["a"] != 1 {
		t.Fatalf("a did not cross the mud")
	}
	if stats.Players["a"].Score.RatString() != "1" {
		t.Fatalf("a score=%s want 1", stats.Players["a"].Score.RatString())
	}

	if s := stats.Players["slow"].Actions; s[game.StatMiss] != 1 {
		t.Fatalf("slow actions=%v", s)
	}
	if got := slow.calls.Load(); got != 2 {
		t.Fatalf("slow asked %d times, want 2", got)
	}
	if i := stats.Players["idle"].Actions; i[game.StatMiss] != 0 || i[game.StatNothing] == 0 {
		t.Fatalf("idle actions=%v", i)
	}
}
