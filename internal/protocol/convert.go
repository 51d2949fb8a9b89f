package protocol

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/maze"
)

func MazeFromGrid(g game.Grid) MazeObs {
	out := MazeObs{Width: g.Width(), Height: g.Height(), Cells: []int{}, Edges: []EdgeObs{}}
	for v := 0; v < g.Width()*g.Height(); v++ {
		if !g.Exists(v) {
			continue
		}
		out.Cells = append(out.Cells, v)
		for _, u := range g.Neighbors(v) {
			if u <= v {
				continue
			}
			if w, ok := g.Weight(v, u); ok {
				out.Edges = append(out.Edges, EdgeObs{A: v, B: u, Weight: w})
			}
		}
	}
	return out
}

// Build reconstructs the maze on the agent side.
func (m MazeObs) Build() (*maze.Maze, error) {
	g := maze.New(m.Width, m.Height)
	for _, v := range m.Cells {
		if err := g.AddVertex(v); err != nil {
			return nil, err
		}
	}
	for _, e := range m.Edges {
		if err := g.AddEdge(e.A, e.B, e.Weight); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func ratFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

func StateFromGame(s *game.State) StateObs {
	out := StateObs{
		Turn:            s.Turn,
		PlayerLocations: make(map[string]int, len(s.PlayerLocations)),
		Scores:          make(map[string]float64, len(s.ScorePerPlayer)),
		ExactScores:     make(map[string]string, len(s.ScorePerPlayer)),
		Muds:            make(map[string]MudObs, len(s.Muds)),
		Teams:           make(map[string][]string, len(s.Teams)),
		Cheese:          append([]int{}, s.Cheese...),
	}
	for p, v := range s.PlayerLocations {
		out.PlayerLocations[p] = v
		sc := s.Score(p)
		out.Scores[p] = ratFloat(sc)
		out.ExactScores[p] = sc.RatString()
	}
	for p, m := range s.Muds {
		out.Muds[p] = MudObs{Target: m.Target, Count: m.Count}
	}
	for t, members := range s.Teams {
		out.Teams[t] = append([]string{}, members...)
	}
	return out
}

// ToGame rebuilds a game state; exact scores are used when present.
func (o StateObs) ToGame() (*game.State, error) {
	s := game.NewState()
	s.Turn = o.Turn
	teams := make([]string, 0, len(o.Teams))
	for t := range o.Teams {
		teams = append(teams, t)
	}
	sort.Strings(teams)
	for _, t := range teams {
		for _, p := range o.Teams[t] {
			loc, ok := o.PlayerLocations[p]
			if !ok {
				return nil, fmt.Errorf("player %s has no location", p)
			}
			s.AddPlayer(p, t, loc)
		}
	}
	for p := range o.PlayerLocations {
		if _, ok := s.TeamOf(p); !ok {
			return nil, fmt.Errorf("player %s has no team", p)
		}
		score := new(big.Rat)
		if exact, ok := o.ExactScores[p]; ok {
			if _, ok := score.SetString(exact); !ok {
				return nil, fmt.Errorf("player %s: bad score %q", p, exact)
			}
		} else {
			score.SetFloat64(o.Scores[p])
		}
		s.ScorePerPlayer[p] = score
	}
	for p, m := range o.Muds {
		s.Muds[p] = game.Mud{Target: m.Target, Count: m.Count}
	}
	s.SetCheese(o.Cheese)
	return s, nil
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func StatsFromGame(st *game.Stats) *StatsObs {
	if st == nil {
		return nil
	}
	out := &StatsObs{Turns: st.Turns, Players: make(map[string]PlayerStatsObs, len(st.Players))}
	for p, ps := range st.Players {
		obs := PlayerStatsObs{
			Actions:         make(map[string]int, len(ps.Actions)),
			Score:           ratFloat(ps.Score),
			TurnDurationsMs: make([]float64, 0, len(ps.TurnDurations)),
		}
		for k, v := range ps.Actions {
			obs.Actions[k] = v
		}
		for _, d := range ps.TurnDurations {
			obs.TurnDurationsMs = append(obs.TurnDurationsMs, ms(d))
		}
		if ps.PreprocessingDuration != nil {
			obs.PreprocessingDone = true
			obs.PreprocessingMs = ms(*ps.PreprocessingDuration)
		}
		out.Players[p] = obs
	}
	return out
}

// ToGame is the inverse of StatsFromGame up to float precision.
func (o *StatsObs) ToGame() *game.Stats {
	if o == nil {
		return nil
	}
	names := make([]string, 0, len(o.Players))
	for p := range o.Players {
		names = append(names, p)
	}
	st := game.NewStats(names)
	st.Turns = o.Turns
	for p, obs := range o.Players {
		ps := st.Players[p]
		for k, v := range obs.Actions {
			ps.Actions[k] = v
		}
		ps.Score = new(big.Rat).SetFloat64(obs.Score)
		for _, d := range obs.TurnDurationsMs {
			ps.TurnDurations = append(ps.TurnDurations, time.Duration(d*float64(time.Millisecond)))
		}
		if obs.PreprocessingDone {
			d := time.Duration(obs.PreprocessingMs * float64(time.Millisecond))
			ps.PreprocessingDuration = &d
		}
	}
	return st
}
