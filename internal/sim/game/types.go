package game

import (
	"fmt"
	"strings"
	"time"
)

// Grid is the view of the maze the engine needs.
type Grid interface {
	Width() int
	Height() int
	Exists(v int) bool
	Neighbors(v int) []int
	// Weight reports the edge weight between two cells; ok=false means wall.
	Weight(a, b int) (w int, ok bool)
	RCToIndex(row, col int) int
	IndexToRC(v int) (row, col int)
}

type Action string

const (
	ActionNothing Action = "nothing"
	ActionNorth   Action = "north"
	ActionSouth   Action = "south"
	ActionEast    Action = "east"
	ActionWest    Action = "west"
)

// Actions lists the possible actions in a stable order.
var Actions = []Action{ActionNothing, ActionNorth, ActionEast, ActionSouth, ActionWest}

func (a Action) Valid() bool {
	switch a {
	case ActionNothing, ActionNorth, ActionSouth, ActionEast, ActionWest:
		return true
	}
	return false
}

func (a Action) IsMove() bool {
	return a == ActionNorth || a == ActionSouth || a == ActionEast || a == ActionWest
}

type Mode string

const (
	ModeStandard    Mode = "standard"
	ModeSynchronous Mode = "synchronous"
	ModeSequential  Mode = "sequential"
	ModeSimulation  Mode = "simulation"
)

func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeStandard, ModeSynchronous, ModeSequential, ModeSimulation:
		return m, nil
	case "":
		return ModeStandard, nil
	}
	return "", fmt.Errorf("unknown game mode %q", s)
}

// Isolated reports whether agents run in their own worker.
func (m Mode) Isolated() bool { return m == ModeStandard || m == ModeSynchronous }

type OutcomeKind string

const (
	OutcomeDecided            OutcomeKind = "decided"
	OutcomeMud                OutcomeKind = "mud"
	OutcomeMiss               OutcomeKind = "miss"
	OutcomeCrashed            OutcomeKind = "crashed"
	OutcomePreprocessingDone  OutcomeKind = "preprocessing_done"
	OutcomePostprocessingDone OutcomeKind = "postprocessing_done"
)

// Outcome is what one agent produced for one round.
type Outcome struct {
	Kind     OutcomeKind   `json:"kind"`
	Action   Action        `json:"action,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Accepted returns the action the resolver should apply for this outcome.
func (o Outcome) Accepted() Action {
	if o.Kind == OutcomeDecided && o.Action.Valid() {
		return o.Action
	}
	return ActionNothing
}

func Decided(a Action, d time.Duration) Outcome {
	return Outcome{Kind: OutcomeDecided, Action: a, Duration: d}
}

func Crashed(msg string) Outcome { return Outcome{Kind: OutcomeCrashed, Message: msg} }
