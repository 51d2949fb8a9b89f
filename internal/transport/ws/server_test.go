package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cheeserun.ai/internal/protocol"
	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/maze"
)

func lineMaze(t *testing.T, n int) *maze.Maze {
	t.Helper()
	m := maze.New(n, 1)
	for v := 0; v+1 < n; v++ {
		if err := m.AddEdge(v, v+1, 1); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return m
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialHello(t *testing.T, url, name string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: name}
	if err := writeJSON(conn, hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	return conn
}

func readInto(t *testing.T, conn *websocket.Conn, v any) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != nil {
		if err := json.Unmarshal(raw, v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	return base.Type
}

func TestRemotePlayerFullMatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g := lineMaze(t, 3)
	srv := NewServer(g, Options{MatchID: "m1", TurnTime: 100 * time.Millisecond}, nil)
	seat := srv.Seat("rat", "mice")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	m, err := match.New(g, match.Config{Mode: game.ModeSynchronous})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.AddPlayer(seat, "mice", match.AtCell(0)); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := m.PlaceCheese([]int{1}); err != nil {
		t.Fatalf("PlaceCheese: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- Play(ctx, wsURL(ts), "", agent.NewFixed("rat", []game.Action{game.ActionEast}), nil)
	}()
	if err := srv.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}

	stats, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ps := stats.Players["rat"]
	if ps.Score.RatString() != "1" || ps.Actions[game.StatEast] != 1 || stats.Turns != 1 {
		t.Fatalf("stats=%+v actions=%v", stats, ps.Actions)
	}
	if err := <-done; err != nil {
		t.Fatalf("Play: %v", err)
	}
}

func TestStaleActIsRejected(t *testing.T) {
	srv := NewServer(lineMaze(t, 2), Options{}, nil)
	srv.Seat("rat", "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialHello(t, wsURL(ts), "rat")
	defer conn.Close()
	var welcome protocol.WelcomeMsg
	if typ := readInto(t, conn, &welcome); typ != protocol.TypeWelcome {
		t.Fatalf("got %s", typ)
	}
	if welcome.Maze.Width != 2 || len(welcome.Maze.Edges) != 1 {
		t.Fatalf("maze=%+v", welcome.Maze)
	}

	act := protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Phase: protocol.PhaseTurn, Turn: 5, Action: "east"}
	if err := writeJSON(conn, act); err != nil {
		t.Fatalf("act: %v", err)
	}
	var ack protocol.AckMsg
	if typ := readInto(t, conn, &ack); typ != protocol.TypeAck {
		t.Fatalf("got %s", typ)
	}
	if ack.Accepted || ack.Code != protocol.ErrStale || ack.Turn != 5 {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestHelloRejections(t *testing.T) {
	srv := NewServer(lineMaze(t, 2), Options{}, nil)
	srv.Seat("rat", "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	unknown := dialHello(t, wsURL(ts), "python")
	defer unknown.Close()
	var ack protocol.AckMsg
	readInto(t, unknown, &ack)
	if ack.Code != protocol.ErrUnknownPlayer {
		t.Fatalf("ack=%+v", ack)
	}

	first := dialHello(t, wsURL(ts), "rat")
	defer first.Close()
	if typ := readInto(t, first, nil); typ != protocol.TypeWelcome {
		t.Fatalf("got %s", typ)
	}
	second := dialHello(t, wsURL(ts), "rat")
	defer second.Close()
	ack = protocol.AckMsg{}
	readInto(t, second, &ack)
	if ack.Code != protocol.ErrSeatTaken {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestTokenRequired(t *testing.T) {
	srv := NewServer(lineMaze(t, 2), Options{Token: "s3cret"}, nil)
	srv.Seat("rat", "")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialHello(t, wsURL(ts), "rat")
	defer conn.Close()
	var ack protocol.AckMsg
	readInto(t, conn, &ack)
	if ack.Code != protocol.ErrUnauthorized {
		t.Fatalf("ack=%+v", ack)
	}
}

func TestDisconnectedSeatFailsFast(t *testing.T) {
	srv := NewServer(lineMaze(t, 2), Options{}, nil)
	seat := srv.Seat("rat", "")
	st := game.NewState()
	st.AddPlayer("rat", "", 0)
	if _, err := seat.Turn(context.Background(), nil, st); err == nil {
		t.Fatalf("expected an error without a connection")
	}
}
