// Package observer streams rendered match states to spectators over
// websockets.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/game"
)

// Server is a match presenter that fans each frame out to the connected
// spectators. Slow spectators drop frames instead of slowing the match.
type Server struct {
	matchID string
	log     *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu    sync.Mutex
	subs  map[string]chan []byte
	maze  *protocol.MazeObs
	last  []byte
	ended bool
}

func NewServer(matchID string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		matchID: matchID,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]chan []byte{},
	}
}

func (s *Server) Render(players []string, g game.Grid, st *game.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.maze == nil
	if first {
		m := protocol.MazeFromGrid(g)
		s.maze = &m
	}
	frame := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		MatchID:         s.matchID,
		Players:         players,
		Maze:            s.maze,
		State:           protocol.StateFromGame(st),
	}
	full, err := json.Marshal(frame)
	if err != nil {
		s.log.Printf("observer: frame %d: %v", st.Turn, err)
		return
	}
	s.last = full
	b := full
	if !first {
		frame.Maze = nil
		if b, err = json.Marshal(frame); err != nil {
			return
		}
	}
	s.broadcast(b)
}

func (s *Server) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	b, _ := json.Marshal(protocol.EndMsg{Type: protocol.TypeEnd, ProtocolVersion: protocol.Version, MatchID: s.matchID})
	s.broadcast(b)
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Server) broadcast(b []byte) {
	for _, ch := range s.subs {
		select {
		case ch <- b:
		default:
			// Drop under load; the next frame carries the full state.
		}
	}
}

func (s *Server) subscribe() (string, chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sid := fmt.Sprintf("O%d", s.nextID.Add(1))
	ch := make(chan []byte, 64)
	if s.last != nil {
		ch <- s.last
	}
	if s.ended {
		b, _ := json.Marshal(protocol.EndMsg{Type: protocol.TypeEnd, ProtocolVersion: protocol.Version, MatchID: s.matchID})
		ch <- b
		close(ch)
		return sid, ch
	}
	s.subs[sid] = ch
	return sid, ch
}

func (s *Server) unsubscribe(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[sid]; ok {
		close(ch)
		delete(s.subs, sid)
	}
}

// FrameHandler serves the latest full frame as JSON.
func (s *Server) FrameHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		last := s.last
		s.mu.Unlock()
		if last == nil {
			http.Error(rw, "no frame yet", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(last)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid, out := s.subscribe()
		defer s.unsubscribe(sid)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "match over"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: spectators have nothing to say, this only notices the
		// close.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		<-writeErr
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
