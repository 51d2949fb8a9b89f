package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "match.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_MatchYAML(t *testing.T) {
	cfg, err := Load("../../../configs/match.yaml")
	if err != nil {
		t.Fatalf("load match.yaml: %v", err)
	}
	if len(cfg.Players) != 3 || cfg.Players[2].Kind != PlayerRemote {
		t.Fatalf("players=%+v", cfg.Players)
	}
	mc := cfg.MatchConfig()
	if mc.Mode != game.ModeStandard || mc.TurnTime != 100*time.Millisecond || mc.PreprocessingTime != 3*time.Second {
		t.Fatalf("match config=%+v", mc)
	}
	if cfg.RenderMode != "ascii" || cfg.MaxTurns != 0 {
		t.Fatalf("render=%q max_turns=%d", cfg.RenderMode, cfg.MaxTurns)
	}
	if cfg.Maze.MudRange != [2]int{4, 9} {
		t.Fatalf("mud range=%v", cfg.Maze.MudRange)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Maze.Width != 15 || cfg.Maze.Height != 13 || cfg.Cheese.Count != 21 {
		t.Fatalf("defaults=%+v", cfg)
	}
}

func TestLoad_SimulationForcesZeroBudgets(t *testing.T) {
	cfg, err := Load(writeYAML(t, "game_mode: SIMULATION\nturn_time: 2\npreprocessing_time: 5\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mc := cfg.MatchConfig()
	if mc.Mode != game.ModeSimulation || mc.TurnTime != 0 || mc.PreprocessingTime != 0 {
		t.Fatalf("match config=%+v", mc)
	}
}

func TestLoad_FixedMazeAndCheese(t *testing.T) {
	body := `
maze:
  fixed:
    0: {1: 1}
    1: {0: 1, 2: 3}
    2: {1: 3}
cheese:
  fixed: [2]
players:
  - name: p
    location: "0"
    kind: fixed
    actions: [east, east]
`
	cfg, err := Load(writeYAML(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Maze.Kind != "fixed" || cfg.Maze.Fixed[1][2] != 3 || cfg.Cheese.Count != 1 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"mode":      "game_mode: turbo\n",
		"time":      "turn_time: -1\n",
		"dup":       "players:\n  - {name: a}\n  - {name: a}\n",
		"kind":      "players:\n  - {name: a, kind: wizard}\n",
		"location":  "players:\n  - {name: a, location: corner}\n",
		"action":    "players:\n  - {name: a, kind: fixed, actions: [jump]}\n",
		"no cheese": "cheese:\n  nb_cheese: 0\n",
		"render":    "render_mode: gui\n",
		"max turns": "max_turns: -2\n",
	}
	for name, body := range cases {
		if _, err := Load(writeYAML(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	_, err := Load(writeYAML(t, cases["dup"]))
	if !errors.Is(err, match.ErrDuplicatePlayer) {
		t.Fatalf("dup err=%v", err)
	}
}

func TestSeeds_Precedence(t *testing.T) {
	global, cheese := int64(5), int64(9)
	cfg := Defaults()
	cfg.RandomSeed = &global
	cfg.RandomSeedCheese = &cheese
	s := cfg.Seeds(func() int64 { return 1 })
	if s.Maze != 5 || s.Players != 5 || s.Cheese != 9 {
		t.Fatalf("seeds=%+v", s)
	}
	cfg.RandomSeed = nil
	s = cfg.Seeds(func() int64 { return 1 })
	if s.Maze != 1 || s.Cheese != 9 {
		t.Fatalf("seeds=%+v", s)
	}
}
