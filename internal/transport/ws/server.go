package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/game"
)

const idleTimeout = 10 * time.Minute

// Options configures the remote player server.
type Options struct {
	MatchID           string
	Token             string
	PreprocessingTime time.Duration
	TurnTime          time.Duration
}

// Server accepts remote players on their reserved seats.
type Server struct {
	grid game.Grid
	opts Options
	log  *log.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	seats map[string]*RemoteAgent
}

func NewServer(g game.Grid, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		grid: g,
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		seats: map[string]*RemoteAgent{},
	}
}

// Seat reserves a player name for a remote connection and returns the agent
// the match engine drives.
func (s *Server) Seat(name, team string) *RemoteAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.seats[name]; ok {
		return r
	}
	r := &RemoteAgent{
		name:      name,
		team:      team,
		srv:       s,
		connected: make(chan struct{}),
	}
	s.seats[name] = r
	return r
}

func (s *Server) seat(name string) *RemoteAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[name]
}

// WaitConnected blocks until every seat has been taken once.
func (s *Server) WaitConnected(ctx context.Context) error {
	s.mu.Lock()
	seats := make([]*RemoteAgent, 0, len(s.seats))
	for _, r := range s.seats {
		seats = append(seats, r)
	}
	s.mu.Unlock()
	for _, r := range seats {
		if err := r.WaitConnected(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		seat, sess := s.handshake(conn)
		if seat == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				sess.send(reject("", 0, protocol.ErrProtoBadRequest, err.Error()))
				continue
			}
			if base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				sess.send(reject(protocol.TypeAct, 0, protocol.ErrBadRequest, err.Error()))
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				sess.send(reject(protocol.TypeAct, act.Turn, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			sess.send(seat.deliver(act))
		}

		// Cleanup.
		seat.detach(sess)
		s.log.Printf("player %s disconnected (session %s)", seat.name, sess.id)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*RemoteAgent, *session) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, nil
	}
	if s.opts.Token != "" && hello.Token != s.opts.Token {
		_ = writeJSON(conn, reject(protocol.TypeHello, 0, protocol.ErrUnauthorized, "bad token"))
		return nil, nil
	}
	seat := s.seat(hello.PlayerName)
	if seat == nil {
		_ = writeJSON(conn, reject(protocol.TypeHello, 0, protocol.ErrUnknownPlayer, "no seat for "+hello.PlayerName))
		return nil, nil
	}

	sess := &session{id: uuid.NewString(), out: make(chan []byte, 8), done: make(chan struct{})}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		MatchID:         s.opts.MatchID,
		PlayerName:      seat.name,
		Team:            seat.team,
		Maze:            protocol.MazeFromGrid(s.grid),
	}
	// A pending request, if any, is queued behind the WELCOME.
	if !seat.attach(sess) {
		_ = writeJSON(conn, reject(protocol.TypeHello, 0, protocol.ErrSeatTaken, seat.name+" is already connected"))
		return nil, nil
	}
	if err := writeJSON(conn, welcome); err != nil {
		seat.detach(sess)
		return nil, nil
	}
	s.log.Printf("player %s connected (session %s)", seat.name, sess.id)
	return seat, sess
}

func reject(ackFor string, turn int, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Code:            code,
		Message:         message,
		Turn:            turn,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return err
	}
	return nil
}
