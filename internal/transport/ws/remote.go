package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/game"
)

// ErrDisconnected is returned by a remote player that has no live connection.
var ErrDisconnected = errors.New("ws: player not connected")

// session is one live connection bound to a seat.
type session struct {
	id   string
	out  chan []byte
	done chan struct{}
}

func (s *session) send(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case s.out <- b:
		return true
	default:
		return false
	}
}

type pending struct {
	msg   protocol.StateMsg
	reply chan protocol.ActMsg
}

// RemoteAgent drives a player over a websocket. Each call sends a STATE and
// waits for the ACT of the same phase and turn.
type RemoteAgent struct {
	name string
	team string
	srv  *Server

	mu        sync.Mutex
	sess      *session
	req       *pending
	connected chan struct{}
	once      sync.Once
}

func (r *RemoteAgent) Name() string { return r.name }

// WaitConnected blocks until a connection first takes the seat.
func (r *RemoteAgent) WaitConnected(ctx context.Context) error {
	select {
	case <-r.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", r.name, ctx.Err())
	}
}

func (r *RemoteAgent) attach(sess *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess != nil {
		return false
	}
	r.sess = sess
	if r.req != nil {
		sess.send(r.req.msg)
	}
	r.once.Do(func() { close(r.connected) })
	return true
}

func (r *RemoteAgent) detach(sess *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == sess {
		r.sess = nil
		close(sess.done)
	}
}

// deliver hands an ACT to the waiting call and returns the ACK to send back.
func (r *RemoteAgent) deliver(act protocol.ActMsg) protocol.AckMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.req == nil || r.req.msg.Phase != act.Phase || r.req.msg.Turn != act.Turn {
		return reject(protocol.TypeAct, act.Turn, protocol.ErrStale, "no pending request for this phase and turn")
	}
	select {
	case r.req.reply <- act:
	default:
		return reject(protocol.TypeAct, act.Turn, protocol.ErrStale, "already answered")
	}
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          protocol.TypeAct,
		Accepted:        true,
		Turn:            act.Turn,
	}
	if act.Phase == protocol.PhaseTurn && !game.Action(act.Action).Valid() {
		ack.Accepted = false
		ack.Code = protocol.ErrInvalidAction
		ack.Message = fmt.Sprintf("invalid action %q", act.Action)
	}
	return ack
}

func (r *RemoteAgent) ask(ctx context.Context, msg protocol.StateMsg) (protocol.ActMsg, error) {
	p := &pending{msg: msg, reply: make(chan protocol.ActMsg, 1)}
	r.mu.Lock()
	r.req = p
	sess := r.sess
	if sess != nil && !sess.send(msg) {
		sess = nil
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.req == p {
			r.req = nil
		}
		r.mu.Unlock()
	}()
	if sess == nil {
		return protocol.ActMsg{}, fmt.Errorf("%w: %s", ErrDisconnected, r.name)
	}

	select {
	case act := <-p.reply:
		if act.Error != "" {
			return act, fmt.Errorf("remote %s: %s", r.name, act.Error)
		}
		return act, nil
	case <-sess.done:
		return protocol.ActMsg{}, fmt.Errorf("%w: %s", ErrDisconnected, r.name)
	case <-ctx.Done():
		return protocol.ActMsg{}, ctx.Err()
	}
}

func (r *RemoteAgent) stateMsg(phase string, s *game.State, budget time.Duration) protocol.StateMsg {
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Phase:           phase,
		Turn:            s.Turn,
		BudgetMs:        budget.Milliseconds(),
		State:           protocol.StateFromGame(s),
	}
}

func (r *RemoteAgent) Preprocessing(ctx context.Context, _ game.Grid, s *game.State) error {
	_, err := r.ask(ctx, r.stateMsg(protocol.PhasePreprocessing, s, r.srv.opts.PreprocessingTime))
	return err
}

func (r *RemoteAgent) Turn(ctx context.Context, _ game.Grid, s *game.State) (game.Action, error) {
	act, err := r.ask(ctx, r.stateMsg(protocol.PhaseTurn, s, r.srv.opts.TurnTime))
	if err != nil {
		return game.ActionNothing, err
	}
	return game.Action(act.Action), nil
}

func (r *RemoteAgent) Postprocessing(ctx context.Context, _ game.Grid, s *game.State, stats *game.Stats) error {
	msg := r.stateMsg(protocol.PhasePostprocessing, s, 0)
	msg.Stats = protocol.StatsFromGame(stats)
	_, err := r.ask(ctx, msg)
	return err
}
