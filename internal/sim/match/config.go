package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"time"

	"cheeserun.ai/internal/sim/game"
)

type Config struct {
	PreprocessingTime time.Duration
	TurnTime          time.Duration
	Mode              game.Mode
	ContinueOnError   bool
}

// Normalize fills defaults and applies the overrides of simulation mode.
func (c Config) Normalize() Config {
	if c.Mode == "" {
		c.Mode = game.ModeStandard
	}
	if c.PreprocessingTime < 0 {
		c.PreprocessingTime = 0
	}
	if c.TurnTime < 0 {
		c.TurnTime = 0
	}
	if c.Mode == game.ModeSimulation {
		c.PreprocessingTime = 0
		c.TurnTime = 0
	}
	return c
}

func (c Config) Validate() error {
	if _, err := game.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

// Presenter receives every resolved state. End is called exactly once when
// the match loop exits, including on abort.
type Presenter interface {
	Render(players []string, g game.Grid, s *game.State)
	End()
}

// TurnRecord is what a TurnSink receives after each resolved turn.
type TurnRecord struct {
	MatchID    string                  `json:"match_id,omitempty"`
	Turn       int                     `json:"turn"`
	Outcomes   map[string]game.Outcome `json:"outcomes,omitempty"`
	Report     game.Report             `json:"report"`
	Scores     map[string]*big.Rat     `json:"scores"`
	CheeseLeft int                     `json:"cheese_left"`
	Digest     string                  `json:"digest"`
}

type TurnSink interface {
	WriteTurn(rec TurnRecord) error
}

// TurnSinks writes each record to every sink and joins their errors.
type TurnSinks []TurnSink

func (ts TurnSinks) WriteTurn(rec TurnRecord) error {
	var errs []error
	for _, s := range ts {
		if err := s.WriteTurn(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clock is injected so tests can control deadlines.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Option func(*Match)

func WithLogger(l *log.Logger) Option {
	return func(m *Match) {
		if l != nil {
			m.log = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(m *Match) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithPresenter(p Presenter) Option {
	return func(m *Match) { m.presenter = p }
}

func WithTurnSink(s TurnSink) Option {
	return func(m *Match) { m.sink = s }
}

func WithMatchID(id string) Option {
	return func(m *Match) { m.id = id }
}

// WithPlayerSeed seeds random player placement.
func WithPlayerSeed(seed int64) Option {
	return func(m *Match) { m.playerSeed = seed }
}

// WithTurnLimit stops the match after n turns even if cheese remains.
func WithTurnLimit(n int) Option {
	return func(m *Match) {
		m.turnLimit = max(n, 0)
		m.limited = true
	}
}

func defaultLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func (c Config) String() string {
	return fmt.Sprintf("mode=%s preprocessing=%s turn=%s continue_on_error=%t", c.Mode, c.PreprocessingTime, c.TurnTime, c.ContinueOnError)
}
