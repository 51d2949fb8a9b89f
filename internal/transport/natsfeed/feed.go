// Package natsfeed publishes match frames on NATS subjects so dashboards and
// recorders can follow a match without connecting to the server.
package natsfeed

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
)

const DefaultPrefix = "cheeserun"

// Publisher is the part of *nats.Conn the feed needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials a NATS server for the feed.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	return nats.Connect(url,
		nats.Name("cheeserun-server"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && logger != nil {
				logger.Printf("nats disconnected: %v", err)
			}
		}),
	)
}

// Feed publishes FRAME messages on <prefix>.<match>.frame, turn records on
// <prefix>.<match>.turn and an END message on <prefix>.<match>.end.
type Feed struct {
	pub     Publisher
	matchID string
	prefix  string
	log     *log.Logger

	mu       sync.Mutex
	sentMaze bool
}

var (
	_ match.Presenter = (*Feed)(nil)
	_ match.TurnSink  = (*Feed)(nil)
)

func New(pub Publisher, prefix, matchID string, logger *log.Logger) *Feed {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Feed{pub: pub, matchID: matchID, prefix: prefix, log: logger}
}

func (f *Feed) Subject(kind string) string {
	return fmt.Sprintf("%s.%s.%s", f.prefix, f.matchID, kind)
}

func (f *Feed) Render(players []string, g game.Grid, s *game.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame := protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		MatchID:         f.matchID,
		Players:         players,
		State:           protocol.StateFromGame(s),
	}
	if !f.sentMaze {
		m := protocol.MazeFromGrid(g)
		frame.Maze = &m
	}
	if err := f.publish("frame", frame); err != nil {
		f.log.Printf("natsfeed: frame %d: %v", s.Turn, err)
		return
	}
	f.sentMaze = true
}

func (f *Feed) WriteTurn(rec match.TurnRecord) error {
	return f.publish("turn", rec)
}

func (f *Feed) End() {
	end := protocol.EndMsg{Type: protocol.TypeEnd, ProtocolVersion: protocol.Version, MatchID: f.matchID}
	if err := f.publish("end", end); err != nil {
		f.log.Printf("natsfeed: end: %v", err)
	}
}

func (f *Feed) publish(kind string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.pub.Publish(f.Subject(kind), b)
}
