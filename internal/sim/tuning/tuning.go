package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cheeserun.ai/internal/render"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/maze"
)

// Tuning is the content of match.yaml.
type Tuning struct {
	PreprocessingTime float64 `yaml:"preprocessing_time"`
	TurnTime          float64 `yaml:"turn_time"`
	GameMode          string  `yaml:"game_mode"`
	ContinueOnError   bool    `yaml:"continue_on_error"`
	MaxTurns          int     `yaml:"max_turns,omitempty"`

	RenderMode       string `yaml:"render_mode"`
	RenderSimplified bool   `yaml:"render_simplified"`

	RandomSeed        *int64 `yaml:"random_seed,omitempty"`
	RandomSeedMaze    *int64 `yaml:"random_seed_maze,omitempty"`
	RandomSeedCheese  *int64 `yaml:"random_seed_cheese,omitempty"`
	RandomSeedPlayers *int64 `yaml:"random_seed_players,omitempty"`

	Maze    MazeSpec     `yaml:"maze"`
	Cheese  CheeseSpec   `yaml:"cheese"`
	Players []PlayerSpec `yaml:"players"`

	SaveGame bool   `yaml:"save_game"`
	SavePath string `yaml:"save_path"`
}

type MazeSpec struct {
	Kind           string              `yaml:"kind"`
	Width          int                 `yaml:"width"`
	Height         int                 `yaml:"height"`
	CellPercentage float64             `yaml:"cell_percentage"`
	WallPercentage float64             `yaml:"wall_percentage"`
	MudPercentage  float64             `yaml:"mud_percentage"`
	MudRange       [2]int              `yaml:"mud_range"`
	Fixed          map[int]map[int]int `yaml:"fixed,omitempty"`
}

type CheeseSpec struct {
	Count int   `yaml:"nb_cheese"`
	Fixed []int `yaml:"fixed,omitempty"`
}

// PlayerSpec describes one built-in or remote player.
type PlayerSpec struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Team     string   `yaml:"team"`
	Location string   `yaml:"location"`
	Seed     int64    `yaml:"seed,omitempty"`
	Actions  []string `yaml:"actions,omitempty"`
}

// Player kinds.
const (
	PlayerRandom = "random"
	PlayerGreedy = "greedy"
	PlayerFixed  = "fixed"
	PlayerRemote = "remote"
)

func Defaults() Tuning {
	return Tuning{
		PreprocessingTime: 3.0,
		TurnTime:          0.1,
		GameMode:          string(game.ModeStandard),
		Maze: MazeSpec{
			Kind:           string(maze.KindRandom),
			Width:          15,
			Height:         13,
			CellPercentage: 80,
			WallPercentage: 60,
			MudPercentage:  20,
			MudRange:       [2]int{4, 9},
		},
		Cheese:   CheeseSpec{Count: 21},
		SavePath: ".",
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("match.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("match.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.GameMode = strings.ToLower(strings.TrimSpace(t.GameMode))
	if t.GameMode == "" {
		t.GameMode = string(game.ModeStandard)
	}
	if t.GameMode == string(game.ModeSimulation) {
		t.PreprocessingTime = 0
		t.TurnTime = 0
	}
	t.RenderMode = strings.ToLower(strings.TrimSpace(t.RenderMode))
	if t.RenderMode == "" {
		t.RenderMode = render.ModeASCII
	}
	t.Maze.Kind = strings.ToLower(strings.TrimSpace(t.Maze.Kind))
	switch {
	case len(t.Maze.Fixed) > 0:
		t.Maze.Kind = string(maze.KindFixed)
	case t.Maze.Kind == "":
		t.Maze.Kind = string(maze.KindRandom)
	}
	if len(t.Cheese.Fixed) > 0 {
		t.Cheese.Count = len(t.Cheese.Fixed)
	}
	for i := range t.Players {
		p := &t.Players[i]
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Kind == "" {
			p.Kind = PlayerRandom
		}
		if strings.TrimSpace(p.Location) == "" {
			p.Location = string(match.LocationCenter)
		}
	}
}

func (t Tuning) Validate() error {
	if t.PreprocessingTime < 0 || t.TurnTime < 0 {
		return errors.New("preprocessing_time and turn_time must be >= 0")
	}
	if t.MaxTurns < 0 {
		return errors.New("max_turns must be >= 0")
	}
	if _, err := render.ParseMode(t.RenderMode); err != nil {
		return err
	}
	if _, err := game.ParseMode(t.GameMode); err != nil {
		return err
	}
	switch maze.Kind(t.Maze.Kind) {
	case maze.KindFixed:
		if len(t.Maze.Fixed) == 0 {
			return errors.New("maze: fixed kind needs an adjacency")
		}
	case maze.KindRandom:
		if t.Maze.Width < 1 || t.Maze.Height < 1 {
			return fmt.Errorf("maze: bad dimensions %dx%d", t.Maze.Width, t.Maze.Height)
		}
	default:
		return fmt.Errorf("maze: unknown kind %q", t.Maze.Kind)
	}
	if len(t.Cheese.Fixed) == 0 && t.Cheese.Count < 1 {
		return errors.New("cheese: nb_cheese must be >= 1")
	}
	seen := map[string]bool{}
	for i, p := range t.Players {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("players[%d]: missing name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("players[%d]: %w: %s", i, match.ErrDuplicatePlayer, p.Name)
		}
		seen[p.Name] = true
		switch p.Kind {
		case PlayerRandom, PlayerGreedy, PlayerFixed, PlayerRemote:
		default:
			return fmt.Errorf("players[%d]: unknown kind %q", i, p.Kind)
		}
		if _, err := match.ParseLocation(p.Location); err != nil {
			return fmt.Errorf("players[%d]: %w", i, err)
		}
		for _, a := range p.Actions {
			if !game.Action(a).Valid() {
				return fmt.Errorf("players[%d]: invalid action %q", i, a)
			}
		}
	}
	return nil
}

// MatchConfig converts the timing and mode settings.
func (t Tuning) MatchConfig() match.Config {
	mode, _ := game.ParseMode(t.GameMode)
	return match.Config{
		PreprocessingTime: seconds(t.PreprocessingTime),
		TurnTime:          seconds(t.TurnTime),
		Mode:              mode,
		ContinueOnError:   t.ContinueOnError,
	}.Normalize()
}

// Seeds are the resolved random seeds of one match.
type Seeds struct {
	Maze    int64 `json:"maze"`
	Cheese  int64 `json:"cheese"`
	Players int64 `json:"players"`
}

// Seeds resolves per-concern seeds: an explicit concern seed wins over the
// global one, and fresh draws fill whatever is left.
func (t Tuning) Seeds(fresh func() int64) Seeds {
	pick := func(specific *int64) int64 {
		switch {
		case specific != nil:
			return *specific
		case t.RandomSeed != nil:
			return *t.RandomSeed
		}
		return fresh()
	}
	return Seeds{
		Maze:    pick(t.RandomSeedMaze),
		Cheese:  pick(t.RandomSeedCheese),
		Players: pick(t.RandomSeedPlayers),
	}
}

// MazeParams converts the maze section for the given seed.
func (t Tuning) MazeParams(seed int64) maze.Params {
	return maze.Params{
		Width:          t.Maze.Width,
		Height:         t.Maze.Height,
		CellPercentage: t.Maze.CellPercentage,
		WallPercentage: t.Maze.WallPercentage,
		MudPercentage:  t.Maze.MudPercentage,
		MudRange:       t.Maze.MudRange,
		Seed:           seed,
		Fixed:          t.Maze.Fixed,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
