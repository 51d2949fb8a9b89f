package protocol

import (
	"math/big"
	"testing"
	"time"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/maze"
)

func TestMazeObs_RoundTrip(t *testing.T) {
	g := maze.New(3, 2)
	for _, e := range [][3]int{{0, 1, 1}, {1, 2, 4}, {1, 4, 1}} {
		if err := g.AddEdge(e[0], e[1], e[2]); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	if err := g.AddVertex(5); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	obs := MazeFromGrid(g)
	if len(obs.Edges) != 3 || len(obs.Cells) != 5 {
		t.Fatalf("obs=%+v", obs)
	}
	back, err := obs.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if w, ok := back.Weight(2, 1); !ok || w != 4 {
		t.Fatalf("weight=%d,%v", w, ok)
	}
	if !back.Exists(5) || back.Exists(3) {
		t.Fatalf("cells differ")
	}
}

func TestStateObs_KeepsExactScores(t *testing.T) {
	s := game.NewState()
	s.Turn = 7
	s.AddPlayer("a", "x", 3)
	s.AddPlayer("b", "y", 4)
	s.ScorePerPlayer["a"] = big.NewRat(1, 3)
	s.Muds["b"] = game.Mud{Target: 5, Count: 2}
	s.SetCheese([]int{1, 2})

	back, err := StateFromGame(s).ToGame()
	if err != nil {
		t.Fatalf("ToGame: %v", err)
	}
	if back.Digest() != s.Digest() {
		t.Fatalf("state changed through the wire: %+v", back)
	}
}

func TestStatsObs_Durations(t *testing.T) {
	st := game.NewStats([]string{"a"})
	st.Turns = 4
	st.Record("a", game.Decided(game.ActionWest, 2*time.Millisecond), false)
	st.Record("a", game.Outcome{Kind: game.OutcomePreprocessingDone, Duration: time.Second}, false)
	obs := StatsFromGame(st)
	if p := obs.Players["a"]; p.TurnDurationsMs[0] != 2 || p.PreprocessingMs != 1000 || p.Actions["west"] != 1 {
		t.Fatalf("obs=%+v", p)
	}
	back := obs.ToGame()
	if back.Turns != 4 || *back.Players["a"].PreprocessingDuration != time.Second {
		t.Fatalf("back=%+v", back.Players["a"])
	}
}
