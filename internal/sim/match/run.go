package match

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"cheeserun.ai/internal/sim/game"
)

// session is the per-Run scheduling state.
type session struct {
	ctx     context.Context
	m       *Match
	order   []string
	benched map[string]bool

	workers []*worker
	gate    *roundGate
	mu      sync.Mutex
}

// Run plays the match to the end and returns its statistics. On abort the
// statistics are nil and the error wraps ErrMatchAborted.
func (m *Match) Run(ctx context.Context) (*game.Stats, error) {
	if m.started {
		return nil, errors.New("match: already run")
	}
	if len(m.agents) == 0 {
		return nil, errors.New("match: no players")
	}
	m.started = true
	m.initial = m.state.Clone()

	presenter := m.presenter
	if m.cfg.Mode == game.ModeSimulation {
		presenter = nil
	}
	if presenter != nil {
		defer presenter.End()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{ctx: ctx, m: m, order: m.Players(), benched: map[string]bool{}}
	if m.cfg.Mode.Isolated() {
		s.gate = newRoundGate(len(m.agents) + 1)
		for _, a := range m.agents {
			w := newWorker(a)
			s.workers = append(s.workers, w)
			go w.run(ctx, m, s.gate, &s.mu)
		}
	}
	m.log.Printf("match %s starting: %d players, %d cheese, %s", m.id, len(m.agents), len(m.state.Cheese), m.cfg)

	stats, err := s.play(presenter)
	if err != nil {
		m.log.Printf("match %s stopped: %v", m.id, err)
		return nil, err
	}
	m.log.Printf("match %s over after %d turns", m.id, stats.Turns)
	return stats, nil
}

func (s *session) play(presenter Presenter) (*game.Stats, error) {
	m := s.m
	stats := game.NewStats(s.order)
	render := func() {
		if presenter != nil {
			presenter.Render(s.order, m.grid, m.state.Clone())
		}
	}
	render()

	outcomes, err := s.round(phasePreprocessing, m.state, nil)
	if err != nil {
		return nil, err
	}
	if err := s.account(outcomes, stats); err != nil {
		return nil, err
	}
	if err := s.advance(map[string]game.Action{}, nil, stats); err != nil {
		return nil, err
	}
	render()

	for !m.state.GameOver() {
		if err := s.ctx.Err(); err != nil {
			return nil, fmt.Errorf("interrupted at turn %d: %w", m.state.Turn, err)
		}
		if m.limited && m.state.Turn-1 >= m.turnLimit {
			m.log.Printf("match %s: turn limit %d reached", m.id, m.turnLimit)
			break
		}
		if s.stuck() {
			m.log.Printf("match %s: no player can act anymore, stopping at turn %d", m.id, m.state.Turn)
			break
		}
		outcomes, err := s.round(phaseTurn, m.state, nil)
		if err != nil {
			return nil, err
		}
		actions := make(map[string]game.Action, len(s.order))
		for _, p := range s.order {
			a := game.ActionNothing
			if o, ok := outcomes[p]; ok {
				a = o.Accepted()
			}
			actions[p] = a
			if !m.state.InMud(p) {
				m.history[p] = append(m.history[p], a)
			}
		}
		if err := s.advance(actions, outcomes, stats); err != nil {
			return nil, err
		}
		render()
	}

	for _, p := range s.order {
		stats.Players[p].Score = m.state.Score(p)
	}
	stats.Turns = m.state.Turn - 1

	outcomes, err = s.round(phasePostprocessing, m.state, stats)
	if err != nil {
		return nil, err
	}
	if err := s.account(outcomes, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// advance resolves one turn, tallies its outcomes and publishes it.
func (s *session) advance(actions map[string]game.Action, outcomes map[string]game.Outcome, stats *game.Stats) error {
	m := s.m
	if err := s.crashCheck(outcomes); err != nil {
		return err
	}
	next, rep, err := resolve(m.grid, m.state, actions)
	if err != nil {
		return err
	}
	for _, p := range s.order {
		if o, ok := outcomes[p]; ok {
			stats.Record(p, o, rep.Wall[p])
		}
	}
	m.state = next
	if m.sink != nil {
		rec := TurnRecord{
			MatchID:    m.id,
			Turn:       next.Turn,
			Outcomes:   outcomes,
			Report:     rep,
			Scores:     make(map[string]*big.Rat, len(s.order)),
			CheeseLeft: len(next.Cheese),
			Digest:     next.Digest(),
		}
		for _, p := range s.order {
			rec.Scores[p] = next.Score(p)
		}
		if err := m.sink.WriteTurn(rec); err != nil {
			m.log.Printf("match %s: turn log: %v", m.id, err)
		}
	}
	return nil
}

// account tallies outcomes of rounds that are not followed by a resolution.
func (s *session) account(outcomes map[string]game.Outcome, stats *game.Stats) error {
	if err := s.crashCheck(outcomes); err != nil {
		return err
	}
	for _, p := range s.order {
		if o, ok := outcomes[p]; ok {
			stats.Record(p, o, false)
		}
	}
	return nil
}

// crashCheck logs crashes and misses, and aborts when crashes are not
// tolerated.
func (s *session) crashCheck(outcomes map[string]game.Outcome) error {
	m := s.m
	var crashed []string
	for _, p := range s.order {
		o, ok := outcomes[p]
		if !ok {
			continue
		}
		switch o.Kind {
		case game.OutcomeCrashed:
			m.log.Printf("player %s crashed: %s", p, o.Message)
			crashed = append(crashed, p)
		case game.OutcomeMiss:
			m.log.Printf("player %s missed turn %d and will not be asked again", p, m.state.Turn)
		}
	}
	if len(crashed) > 0 && !m.cfg.ContinueOnError {
		return fmt.Errorf("%w: player %s crashed at turn %d", ErrMatchAborted, crashed[0], m.state.Turn)
	}
	return nil
}

// resolve turns a resolver panic into a match abort.
func resolve(g game.Grid, st *game.State, actions map[string]game.Action) (next *game.State, rep game.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: resolving turn %d: %v", ErrMatchAborted, st.Turn, r)
		}
	}()
	next, rep = game.Resolve(g, st, actions)
	return next, rep, nil
}

// stuck reports whether every player is benched, so no further turn can
// change the state.
func (s *session) stuck() bool {
	for _, p := range s.order {
		if !s.benched[p] || s.m.state.InMud(p) {
			return false
		}
	}
	return true
}

func (s *session) round(ph phase, st *game.State, stats *game.Stats) (map[string]game.Outcome, error) {
	if s.m.cfg.Mode.Isolated() {
		return s.isolatedRound(ph, st, stats)
	}
	return s.inProcessRound(ph, st, stats)
}

// pace sleeps the budget of a decision round in every mode; simulation has
// zero budgets. Postprocessing is never paced.
func (s *session) pace(ph phase) error {
	if ph == phasePostprocessing {
		return nil
	}
	return s.m.clock.Sleep(s.ctx, s.budget(ph))
}

func (s *session) newRequest(ph phase, p string, st *game.State, stats *game.Stats) request {
	return request{
		phase: ph,
		state: st.Clone(),
		stats: stats.Clone(),
		inMud: ph == phaseTurn && st.InMud(p),
	}
}

// inProcessRound calls each agent directly in registration order, then
// waits out the budget.
func (s *session) inProcessRound(ph phase, st *game.State, stats *game.Stats) (map[string]game.Outcome, error) {
	out := make(map[string]game.Outcome, len(s.m.agents))
	for _, a := range s.m.agents {
		p := a.Name()
		out[p] = s.m.invoke(s.ctx, a, s.newRequest(ph, p, st, stats))
	}
	if err := s.pace(ph); err != nil {
		return nil, err
	}
	return out, nil
}

// isolatedRound dispatches the round to the workers, waits out the budget
// and collects what counts. In standard mode only answers present once the
// budget has elapsed are accepted; the others are missed and their player
// benched. Synchronous mode waits for every answer.
func (s *session) isolatedRound(ph phase, st *game.State, stats *game.Stats) (map[string]game.Outcome, error) {
	ctx := s.ctx
	var awaited, timed []*worker
	for _, w := range s.workers {
		if s.benched[w.name] {
			continue
		}
		req := s.newRequest(ph, w.name, st, stats)
		w.in <- req
		if s.m.cfg.Mode == game.ModeStandard && ph != phasePostprocessing && !req.inMud {
			timed = append(timed, w)
		} else {
			awaited = append(awaited, w)
		}
	}
	s.gate.standIn(len(s.workers) - len(awaited) - len(timed))
	if err := s.gate.wait(ctx); err != nil {
		return nil, err
	}

	if err := s.pace(ph); err != nil {
		return nil, err
	}

	out := make(map[string]game.Outcome, len(s.workers))
	for _, w := range awaited {
		select {
		case o := <-w.out:
			out[w.name] = o
			w.release(ph)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	for _, w := range timed {
		select {
		case o := <-w.out:
			out[w.name] = o
			w.release(ph)
		default:
			out[w.name] = game.Outcome{Kind: game.OutcomeMiss}
			s.benched[w.name] = true
		}
	}
	s.mu.Unlock()
	return out, nil
}

func (s *session) budget(ph phase) time.Duration {
	if ph == phasePreprocessing {
		return s.m.cfg.PreprocessingTime
	}
	return s.m.cfg.TurnTime
}
