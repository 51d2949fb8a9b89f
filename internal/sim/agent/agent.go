// Package agent defines the decision capability the match engine drives and
// a few built-in players.
package agent

import (
	"context"

	"cheeserun.ai/internal/sim/game"
)

// Agent is one competitor. Implementations may keep private memory between
// calls; the engine never calls the same agent concurrently. Any call may
// panic or run for an arbitrarily long time.
type Agent interface {
	Name() string
	// Preprocessing is called once before the first turn.
	Preprocessing(ctx context.Context, g game.Grid, s *game.State) error
	// Turn returns the action for the current turn.
	Turn(ctx context.Context, g game.Grid, s *game.State) (game.Action, error)
	// Postprocessing is called once the match is decided. It is not timed.
	Postprocessing(ctx context.Context, g game.Grid, s *game.State, stats *game.Stats) error
}

// Base provides no-op pre/postprocessing so players only need Turn.
type Base struct {
	PlayerName string
}

func (b Base) Name() string { return b.PlayerName }

func (Base) Preprocessing(context.Context, game.Grid, *game.State) error { return nil }

func (Base) Postprocessing(context.Context, game.Grid, *game.State, *game.Stats) error {
	return nil
}
