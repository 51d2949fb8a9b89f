package match

import (
	"context"
	"fmt"
	"sync"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
)

type phase int

const (
	phasePreprocessing phase = iota
	phaseTurn
	phasePostprocessing
)

func (p phase) String() string {
	switch p {
	case phasePreprocessing:
		return "preprocessing"
	case phasePostprocessing:
		return "postprocessing"
	}
	return "turn"
}

type request struct {
	phase phase
	state *game.State
	stats *game.Stats
	inMud bool
}

// invoke runs one agent call and converts panics, errors and invalid
// actions into a crashed outcome. Players in mud answer without running
// agent code.
func (m *Match) invoke(ctx context.Context, a agent.Agent, req request) (out game.Outcome) {
	if req.phase == phaseTurn && req.inMud {
		return game.Outcome{Kind: game.OutcomeMud}
	}
	defer func() {
		if r := recover(); r != nil {
			out = game.Crashed(fmt.Sprintf("panic in %s: %v", req.phase, r))
		}
	}()
	start := m.clock.Now()
	switch req.phase {
	case phasePreprocessing:
		if err := a.Preprocessing(ctx, m.grid, req.state); err != nil {
			return game.Crashed(err.Error())
		}
		return game.Outcome{Kind: game.OutcomePreprocessingDone, Duration: m.clock.Now().Sub(start)}
	case phasePostprocessing:
		if err := a.Postprocessing(ctx, m.grid, req.state, req.stats); err != nil {
			return game.Crashed(err.Error())
		}
		return game.Outcome{Kind: game.OutcomePostprocessingDone}
	}
	act, err := a.Turn(ctx, m.grid, req.state)
	if err != nil {
		return game.Crashed(err.Error())
	}
	if !act.Valid() {
		return game.Crashed(fmt.Sprintf("invalid action %q", act))
	}
	return game.Decided(act, m.clock.Now().Sub(start))
}

// worker runs one agent in its own goroutine.
type worker struct {
	name  string
	agent agent.Agent
	in    chan request
	out   chan game.Outcome
	ack   chan struct{}
}

func newWorker(a agent.Agent) *worker {
	return &worker{
		name:  a.Name(),
		agent: a,
		in:    make(chan request, 1),
		out:   make(chan game.Outcome, 1),
		ack:   make(chan struct{}, 1),
	}
}

// run loops until postprocessing is done or ctx is cancelled. Publication
// happens under mu so the scheduler's deadline sampling sees either the
// whole outcome or none of it.
func (w *worker) run(ctx context.Context, m *Match, gate *roundGate, mu *sync.Mutex) {
	for {
		var req request
		select {
		case req = <-w.in:
		case <-ctx.Done():
			return
		}
		select {
		case <-gate.arrive():
		case <-ctx.Done():
			return
		}
		o := m.invoke(ctx, w.agent, req)
		mu.Lock()
		w.out <- o
		mu.Unlock()
		if req.phase == phasePostprocessing {
			return
		}
		select {
		case <-w.ack:
		case <-ctx.Done():
			return
		}
	}
}

// release completes the round-end hand-off with the worker.
func (w *worker) release(ph phase) {
	if ph == phasePostprocessing {
		return
	}
	select {
	case w.ack <- struct{}{}:
	default:
	}
}
