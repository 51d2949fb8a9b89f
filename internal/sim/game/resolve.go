package game

import "math/big"

// Report describes side effects of one resolution that are not visible in
// the resulting state alone.
type Report struct {
	// Wall lists players whose move hit a wall or the maze border.
	Wall map[string]bool `json:"wall,omitempty"`
	// Collected maps each collected cheese cell to the players sharing it.
	Collected map[int][]string `json:"collected,omitempty"`
}

// Destination returns the cell reached from v with action a, or false when
// the move leaves the grid or the action is not a move.
func Destination(g Grid, v int, a Action) (int, bool) {
	row, col := g.IndexToRC(v)
	switch a {
	case ActionNorth:
		row--
	case ActionSouth:
		row++
	case ActionWest:
		col--
	case ActionEast:
		col++
	default:
		return 0, false
	}
	if row < 0 || row >= g.Height() || col < 0 || col >= g.Width() {
		return 0, false
	}
	return g.RCToIndex(row, col), true
}

// Resolve computes the state following s once the accepted actions are
// applied. It never mutates s. Missing or invalid actions count as nothing.
func Resolve(g Grid, s *State, actions map[string]Action) (*State, Report) {
	next := s.Clone()
	next.Turn++
	rep := Report{Wall: map[string]bool{}, Collected: map[int][]string{}}
	players := s.Players()

	for _, p := range players {
		if s.InMud(p) {
			continue
		}
		a := actions[p]
		if !a.IsMove() {
			continue
		}
		from := s.PlayerLocations[p]
		to, ok := Destination(g, from, a)
		if !ok {
			rep.Wall[p] = true
			continue
		}
		w, ok := g.Weight(from, to)
		switch {
		case !ok || w < 1:
			rep.Wall[p] = true
		case w == 1:
			next.PlayerLocations[p] = to
		default:
			next.Muds[p] = Mud{Target: to, Count: w}
		}
	}

	// Only players already in mud when the turn started make progress; a
	// player entering mud this turn starts counting next turn.
	for _, p := range players {
		if !s.InMud(p) {
			continue
		}
		m := next.Muds[p]
		m.Count--
		if m.Count <= 0 {
			next.PlayerLocations[p] = m.Target
			m = Mud{Target: NoTarget}
		}
		next.Muds[p] = m
	}

	// Cheese is awarded only after every player has moved.
	remaining := next.Cheese[:0:0]
	for _, c := range s.Cheese {
		var on []string
		for _, p := range players {
			if next.PlayerLocations[p] == c {
				on = append(on, p)
			}
		}
		if len(on) == 0 {
			remaining = append(remaining, c)
			continue
		}
		share := big.NewRat(1, int64(len(on)))
		for _, p := range on {
			next.ScorePerPlayer[p] = new(big.Rat).Add(next.Score(p), share)
		}
		rep.Collected[c] = on
	}
	next.Cheese = remaining
	return next, rep
}
