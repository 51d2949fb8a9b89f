package game

import (
	"math/big"
	"time"
)

// Statistic keys counted per player.
const (
	StatNothing = "nothing"
	StatNorth   = "north"
	StatEast    = "east"
	StatSouth   = "south"
	StatWest    = "west"
	StatMud     = "mud"
	StatError   = "error"
	StatMiss    = "miss"
	StatWall    = "wall"
)

var StatKeys = []string{StatMud, StatError, StatMiss, StatNothing, StatNorth, StatEast, StatSouth, StatWest, StatWall}

type PlayerStats struct {
	Actions               map[string]int  `json:"actions"`
	Score                 *big.Rat        `json:"score"`
	TurnDurations         []time.Duration `json:"turn_durations"`
	PreprocessingDuration *time.Duration  `json:"preprocessing_duration"`
}

// Stats is the record returned at the end of a match.
type Stats struct {
	Players map[string]*PlayerStats `json:"players"`
	Turns   int                     `json:"turns"`
}

func NewStats(players []string) *Stats {
	st := &Stats{Players: make(map[string]*PlayerStats, len(players)), Turns: -1}
	for _, p := range players {
		actions := make(map[string]int, len(StatKeys))
		for _, k := range StatKeys {
			actions[k] = 0
		}
		st.Players[p] = &PlayerStats{Actions: actions, Score: new(big.Rat)}
	}
	return st
}

// Record tallies one turn outcome for a player. wall is true when the
// resolver reported the player's move as blocked.
func (st *Stats) Record(player string, o Outcome, wall bool) {
	ps, ok := st.Players[player]
	if !ok {
		return
	}
	switch o.Kind {
	case OutcomeDecided:
		if wall && o.Action.IsMove() {
			ps.Actions[StatWall]++
		} else {
			ps.Actions[string(o.Accepted())]++
		}
		ps.TurnDurations = append(ps.TurnDurations, o.Duration)
	case OutcomeMud:
		ps.Actions[StatMud]++
	case OutcomeMiss:
		ps.Actions[StatMiss]++
	case OutcomeCrashed:
		ps.Actions[StatError]++
	case OutcomePreprocessingDone:
		d := o.Duration
		ps.PreprocessingDuration = &d
	}
}

// Clone returns a deep copy, handed to agents during postprocessing.
func (st *Stats) Clone() *Stats {
	if st == nil {
		return nil
	}
	out := &Stats{Players: make(map[string]*PlayerStats, len(st.Players)), Turns: st.Turns}
	for p, ps := range st.Players {
		cp := &PlayerStats{
			Actions:       make(map[string]int, len(ps.Actions)),
			Score:         new(big.Rat).Set(ps.Score),
			TurnDurations: append([]time.Duration(nil), ps.TurnDurations...),
		}
		for k, v := range ps.Actions {
			cp.Actions[k] = v
		}
		if ps.PreprocessingDuration != nil {
			d := *ps.PreprocessingDuration
			cp.PreprocessingDuration = &d
		}
		out.Players[p] = cp
	}
	return out
}
