package match

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
)

var (
	ErrDuplicatePlayer = errors.New("duplicate player name")
	ErrMatchAborted    = errors.New("match aborted")
)

type LocationKind string

const (
	LocationCenter LocationKind = "center"
	LocationRandom LocationKind = "random"
	LocationSame   LocationKind = "same"
	LocationCell   LocationKind = "cell"
)

// Location is where a player starts.
type Location struct {
	Kind LocationKind
	Cell int
}

func AtCenter() Location    { return Location{Kind: LocationCenter} }
func AtRandom() Location    { return Location{Kind: LocationRandom} }
func AtPrevious() Location  { return Location{Kind: LocationSame} }
func AtCell(v int) Location { return Location{Kind: LocationCell, Cell: v} }

func (l Location) String() string {
	if l.Kind == LocationCell {
		return strconv.Itoa(l.Cell)
	}
	return string(l.Kind)
}

// ParseLocation accepts "center", "random", "same" or a cell index.
func ParseLocation(s string) (Location, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch LocationKind(s) {
	case "", LocationCenter:
		return AtCenter(), nil
	case LocationRandom:
		return AtRandom(), nil
	case LocationSame:
		return AtPrevious(), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Location{}, fmt.Errorf("bad location %q", s)
	}
	return AtCell(v), nil
}

// Match owns one competition from setup to final statistics.
type Match struct {
	id        string
	cfg       Config
	grid      game.Grid
	log       *log.Logger
	clock     Clock
	presenter Presenter
	sink      TurnSink

	playerSeed int64
	turnLimit  int
	limited    bool

	agents       []agent.Agent
	state        *game.State
	initial      *game.State
	cheesePlaced bool
	started      bool
	history      map[string][]game.Action
}

func New(g game.Grid, cfg Config, opts ...Option) (*Match, error) {
	if g == nil {
		return nil, errors.New("match: nil grid")
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Match{
		cfg:     cfg,
		grid:    g,
		log:     defaultLogger(),
		clock:   realClock{},
		state:   game.NewState(),
		history: map[string][]game.Action{},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Match) ID() string      { return m.id }
func (m *Match) Config() Config  { return m.cfg }
func (m *Match) Grid() game.Grid { return m.grid }

// Players returns names in registration order.
func (m *Match) Players() []string {
	out := make([]string, len(m.agents))
	for i, a := range m.agents {
		out[i] = a.Name()
	}
	return out
}

// State returns a copy of the current canonical state.
func (m *Match) State() *game.State { return m.state.Clone() }

// InitialState returns the state the match started from, once Run was called.
func (m *Match) InitialState() *game.State {
	if m.initial == nil {
		return m.state.Clone()
	}
	return m.initial.Clone()
}

// History returns the accepted actions of each player, skipping turns spent
// in mud.
func (m *Match) History() map[string][]game.Action {
	out := make(map[string][]game.Action, len(m.history))
	for p, acts := range m.history {
		out[p] = append([]game.Action(nil), acts...)
	}
	return out
}

// AddPlayer registers an agent. Players must be added before cheese is placed.
func (m *Match) AddPlayer(a agent.Agent, team string, loc Location) error {
	if m.started {
		return errors.New("match: already started")
	}
	if m.cheesePlaced {
		return errors.New("match: players must be added before cheese")
	}
	name := a.Name()
	if name == "" {
		return errors.New("match: empty player name")
	}
	for _, other := range m.agents {
		if other.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicatePlayer, name)
		}
	}
	v, err := m.place(loc)
	if err != nil {
		return fmt.Errorf("place %s: %w", name, err)
	}
	m.agents = append(m.agents, a)
	m.state.AddPlayer(name, team, v)
	m.history[name] = nil
	return nil
}

func (m *Match) place(loc Location) (int, error) {
	switch loc.Kind {
	case LocationCenter, "":
		row, col := m.grid.Height()/2, m.grid.Width()/2
		return m.closestCell(row, col)
	case LocationSame:
		if len(m.agents) == 0 {
			return 0, errors.New("no previous player")
		}
		return m.state.PlayerLocations[m.agents[len(m.agents)-1].Name()], nil
	case LocationRandom:
		cells := m.cells()
		if len(cells) == 0 {
			return 0, errors.New("empty maze")
		}
		rng := rand.New(rand.NewSource(m.playerSeed + int64(len(m.agents))))
		return cells[rng.Intn(len(cells))], nil
	case LocationCell:
		if loc.Cell < 0 || loc.Cell >= m.grid.Width()*m.grid.Height() {
			return 0, fmt.Errorf("cell %d outside maze", loc.Cell)
		}
		if m.grid.Exists(loc.Cell) {
			return loc.Cell, nil
		}
		row, col := m.grid.IndexToRC(loc.Cell)
		v, err := m.closestCell(row, col)
		if err == nil {
			m.log.Printf("cell %d is not in the maze, using closest cell %d", loc.Cell, v)
		}
		return v, err
	}
	return 0, fmt.Errorf("unknown location kind %q", loc.Kind)
}

func (m *Match) cells() []int {
	n := m.grid.Width() * m.grid.Height()
	out := make([]int, 0, n)
	for v := 0; v < n; v++ {
		if m.grid.Exists(v) {
			out = append(out, v)
		}
	}
	return out
}

// closestCell returns the existing cell nearest to (row, col) by Euclidean
// distance, lowest index on ties.
func (m *Match) closestCell(row, col int) (int, error) {
	best, bestDist := -1, math.Inf(1)
	for _, v := range m.cells() {
		r, c := m.grid.IndexToRC(v)
		d := math.Hypot(float64(r-row), float64(c-col))
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	if best < 0 {
		return 0, errors.New("empty maze")
	}
	return best, nil
}

func (m *Match) occupied() map[int]bool {
	out := make(map[int]bool, len(m.agents))
	for _, v := range m.state.PlayerLocations {
		out[v] = true
	}
	return out
}

// PlaceCheese puts cheese on a fixed list of cells.
func (m *Match) PlaceCheese(cells []int) error {
	if m.started {
		return errors.New("match: already started")
	}
	if len(cells) == 0 {
		return errors.New("match: no cheese")
	}
	seen := make(map[int]bool, len(cells))
	occ := m.occupied()
	for _, c := range cells {
		switch {
		case seen[c]:
			return fmt.Errorf("duplicate cheese at %d", c)
		case !m.grid.Exists(c):
			return fmt.Errorf("cheese at %d is not in the maze", c)
		case occ[c]:
			return fmt.Errorf("cheese at %d is under a player", c)
		}
		seen[c] = true
	}
	m.state.SetCheese(cells)
	m.cheesePlaced = true
	return nil
}

// ScatterCheese puts n pieces of cheese on random free cells.
func (m *Match) ScatterCheese(n int, seed int64) error {
	if n <= 0 {
		return fmt.Errorf("match: bad cheese count %d", n)
	}
	occ := m.occupied()
	var free []int
	for _, v := range m.cells() {
		if !occ[v] {
			free = append(free, v)
		}
	}
	if n > len(free) {
		return fmt.Errorf("match: %d cheese requested but only %d free cells", n, len(free))
	}
	sort.Ints(free)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	return m.PlaceCheese(free[:n])
}
