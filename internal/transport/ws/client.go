package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/gorilla/websocket"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
)

// Play connects a local agent to a match server as the named player and
// answers its requests until postprocessing is done.
func Play(ctx context.Context, url, token string, a agent.Agent, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      a.Name(),
		Token:           token,
	}
	if err := writeJSON(conn, hello); err != nil {
		return err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return err
	}
	if base.Type == protocol.TypeAck {
		var ack protocol.AckMsg
		_ = json.Unmarshal(raw, &ack)
		return fmt.Errorf("hello rejected: %s %s", ack.Code, ack.Message)
	}
	if base.Type != protocol.TypeWelcome {
		return fmt.Errorf("expected WELCOME, got %s", base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(raw, &welcome); err != nil {
		return err
	}
	g, err := welcome.Maze.Build()
	if err != nil {
		return fmt.Errorf("welcome maze: %w", err)
	}
	logger.Printf("joined match %s as %s (team %s)", welcome.MatchID, welcome.PlayerName, welcome.Team)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(raw, &ack); err == nil && !ack.Accepted {
				logger.Printf("turn %d rejected: %s %s", ack.Turn, ack.Code, ack.Message)
			}
		case protocol.TypeState:
			var msg protocol.StateMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return err
			}
			act, err := answer(ctx, a, g, msg)
			if err != nil {
				return err
			}
			if err := writeJSON(conn, act); err != nil {
				return err
			}
			if msg.Phase == protocol.PhasePostprocessing {
				return nil
			}
		}
	}
}

// answer runs the local agent for one request. Agent errors are reported to
// the server inside the ACT rather than ending the connection.
func answer(ctx context.Context, a agent.Agent, g game.Grid, msg protocol.StateMsg) (protocol.ActMsg, error) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Phase:           msg.Phase,
		Turn:            msg.Turn,
	}
	st, err := msg.State.ToGame()
	if err != nil {
		return act, fmt.Errorf("turn %d state: %w", msg.Turn, err)
	}
	switch msg.Phase {
	case protocol.PhasePreprocessing:
		err = a.Preprocessing(ctx, g, st)
	case protocol.PhaseTurn:
		var action game.Action
		action, err = a.Turn(ctx, g, st)
		act.Action = string(action)
	case protocol.PhasePostprocessing:
		err = a.Postprocessing(ctx, g, st, msg.Stats.ToGame())
	default:
		return act, fmt.Errorf("unknown phase %q", msg.Phase)
	}
	if err != nil {
		act.Error = err.Error()
	}
	return act, nil
}
