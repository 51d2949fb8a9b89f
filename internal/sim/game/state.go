package game

import (
	"math/big"
	"sort"
)

// NoTarget marks a player that is not crossing mud.
const NoTarget = -1

type Mud struct {
	Target int `json:"target"`
	Count  int `json:"count"`
}

// State is a snapshot of the match between two turns. Scores are exact
// rationals so that cheese shared by three players is worth exactly 1/3.
type State struct {
	Turn            int                 `json:"turn"`
	PlayerLocations map[string]int      `json:"player_locations"`
	ScorePerPlayer  map[string]*big.Rat `json:"score_per_player"`
	Muds            map[string]Mud      `json:"muds"`
	Teams           map[string][]string `json:"teams"`
	Cheese          []int               `json:"cheese"`
}

func NewState() *State {
	return &State{
		PlayerLocations: map[string]int{},
		ScorePerPlayer:  map[string]*big.Rat{},
		Muds:            map[string]Mud{},
		Teams:           map[string][]string{},
	}
}

// AddPlayer registers a player at a location in a team.
func (s *State) AddPlayer(name, team string, location int) {
	s.PlayerLocations[name] = location
	s.ScorePerPlayer[name] = new(big.Rat)
	s.Muds[name] = Mud{Target: NoTarget}
	s.Teams[team] = append(s.Teams[team], name)
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		Turn:            s.Turn,
		PlayerLocations: make(map[string]int, len(s.PlayerLocations)),
		ScorePerPlayer:  make(map[string]*big.Rat, len(s.ScorePerPlayer)),
		Muds:            make(map[string]Mud, len(s.Muds)),
		Teams:           make(map[string][]string, len(s.Teams)),
	}
	for p, v := range s.PlayerLocations {
		out.PlayerLocations[p] = v
	}
	for p, r := range s.ScorePerPlayer {
		out.ScorePerPlayer[p] = new(big.Rat).Set(r)
	}
	for p, m := range s.Muds {
		out.Muds[p] = m
	}
	for t, members := range s.Teams {
		out.Teams[t] = append([]string(nil), members...)
	}
	if len(s.Cheese) > 0 {
		out.Cheese = append([]int(nil), s.Cheese...)
	}
	return out
}

func (s *State) InMud(player string) bool {
	m, ok := s.Muds[player]
	return ok && m.Target != NoTarget
}

// Players returns player names in ascending order.
func (s *State) Players() []string {
	out := make([]string, 0, len(s.PlayerLocations))
	for p := range s.PlayerLocations {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *State) TeamNames() []string {
	out := make([]string, 0, len(s.Teams))
	for t := range s.Teams {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *State) TeamOf(player string) (string, bool) {
	for _, t := range s.TeamNames() {
		for _, p := range s.Teams[t] {
			if p == player {
				return t, true
			}
		}
	}
	return "", false
}

func (s *State) Score(player string) *big.Rat {
	if r, ok := s.ScorePerPlayer[player]; ok && r != nil {
		return new(big.Rat).Set(r)
	}
	return new(big.Rat)
}

func (s *State) TotalScore() *big.Rat {
	sum := new(big.Rat)
	for _, r := range s.ScorePerPlayer {
		sum.Add(sum, r)
	}
	return sum
}

func (s *State) TeamScores() map[string]*big.Rat {
	out := make(map[string]*big.Rat, len(s.Teams))
	for t, members := range s.Teams {
		sum := new(big.Rat)
		for _, p := range members {
			if r, ok := s.ScorePerPlayer[p]; ok {
				sum.Add(sum, r)
			}
		}
		out[t] = sum
	}
	return out
}

func (s *State) HasCheese(v int) bool {
	i := sort.SearchInts(s.Cheese, v)
	return i < len(s.Cheese) && s.Cheese[i] == v
}

// SetCheese replaces the cheese set, keeping it sorted and duplicate free.
func (s *State) SetCheese(cells []int) {
	cp := append([]int(nil), cells...)
	sort.Ints(cp)
	out := cp[:0]
	for i, v := range cp {
		if i > 0 && cp[i-1] == v {
			continue
		}
		out = append(out, v)
	}
	s.Cheese = out
}

// GameOver reports whether the match has a foregone conclusion: no cheese is
// left, or a unique leading team cannot be reached by any other team even if
// that team collected all remaining cheese. A single-team match only ends when
// the cheese runs out.
func (s *State) GameOver() bool {
	if len(s.Cheese) == 0 {
		return true
	}
	if len(s.Teams) < 2 {
		return false
	}
	scores := s.TeamScores()
	var best *big.Rat
	for _, r := range scores {
		if best == nil || r.Cmp(best) > 0 {
			best = r
		}
	}
	remaining := new(big.Rat).SetInt64(int64(len(s.Cheese)))
	leaders := 0
	for _, r := range scores {
		if r.Cmp(best) == 0 {
			leaders++
			continue
		}
		if new(big.Rat).Add(r, remaining).Cmp(best) >= 0 {
			return false
		}
	}
	return leaders == 1
}
