// Package savegame stores finished matches so they can be replayed move for
// move.
package savegame

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/maze"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	MatchID   string `json:"match_id"`
	Turns     int    `json:"turns"`
	CreatedAt string `json:"created_at"`
}

type SaveGameV1 struct {
	Header Header `json:"header"`

	Mode              string `json:"mode"`
	PreprocessingTime int64  `json:"preprocessing_time_ms"`
	TurnTime          int64  `json:"turn_time_ms"`
	ContinueOnError   bool   `json:"continue_on_error"`

	Seeds SeedsV1 `json:"seeds"`

	Width  int      `json:"width"`
	Height int      `json:"height"`
	Cells  []int    `json:"cells"`
	Edges  []EdgeV1 `json:"edges"`

	Players []PlayerV1 `json:"players"`
	Cheese  []int      `json:"cheese"`

	FinalDigest string            `json:"final_digest"`
	Scores      map[string]string `json:"scores"`
}

type SeedsV1 struct {
	Maze    int64 `json:"maze"`
	Cheese  int64 `json:"cheese"`
	Players int64 `json:"players"`
}

type EdgeV1 struct {
	A      int `json:"a"`
	B      int `json:"b"`
	Weight int `json:"weight"`
}

// PlayerV1 is one player in registration order with its accepted actions.
type PlayerV1 struct {
	Name     string   `json:"name"`
	Team     string   `json:"team"`
	Location int      `json:"location"`
	Actions  []string `json:"actions"`
}

// FromMatch captures a match after Run returned.
func FromMatch(m *match.Match, seeds SeedsV1, stats *game.Stats) SaveGameV1 {
	g := m.Grid()
	cfg := m.Config()
	initial := m.InitialState()
	final := m.State()
	sg := SaveGameV1{
		Header: Header{
			Version:   Version,
			MatchID:   m.ID(),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
		Mode:              string(cfg.Mode),
		PreprocessingTime: cfg.PreprocessingTime.Milliseconds(),
		TurnTime:          cfg.TurnTime.Milliseconds(),
		ContinueOnError:   cfg.ContinueOnError,
		Seeds:             seeds,
		Width:             g.Width(),
		Height:            g.Height(),
		Cheese:            append([]int{}, initial.Cheese...),
		FinalDigest:       final.Digest(),
		Scores:            map[string]string{},
	}
	if stats != nil {
		sg.Header.Turns = stats.Turns
	}
	for v := 0; v < g.Width()*g.Height(); v++ {
		if !g.Exists(v) {
			continue
		}
		sg.Cells = append(sg.Cells, v)
		for _, u := range g.Neighbors(v) {
			if w, ok := g.Weight(v, u); ok && u > v {
				sg.Edges = append(sg.Edges, EdgeV1{A: v, B: u, Weight: w})
			}
		}
	}
	history := m.History()
	for _, p := range m.Players() {
		team, _ := initial.TeamOf(p)
		pl := PlayerV1{Name: p, Team: team, Location: initial.PlayerLocations[p]}
		for _, a := range history[p] {
			pl.Actions = append(pl.Actions, string(a))
		}
		sg.Players = append(sg.Players, pl)
		sg.Scores[p] = final.Score(p).RatString()
	}
	return sg
}

// Maze rebuilds the saved maze.
func (sg SaveGameV1) Maze() (*maze.Maze, error) {
	g := maze.New(sg.Width, sg.Height)
	for _, v := range sg.Cells {
		if err := g.AddVertex(v); err != nil {
			return nil, err
		}
	}
	for _, e := range sg.Edges {
		if err := g.AddEdge(e.A, e.B, e.Weight); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ErrDigestMismatch is returned when a replay does not reach the saved final
// state.
var ErrDigestMismatch = errors.New("savegame: replay diverged")

// Replay plays the saved actions again in simulation mode and checks the
// final state digest.
func (sg SaveGameV1) Replay(ctx context.Context, logger *log.Logger, opts ...match.Option) (*match.Match, *game.Stats, error) {
	g, err := sg.Maze()
	if err != nil {
		return nil, nil, err
	}
	opts = append([]match.Option{
		match.WithLogger(logger),
		match.WithMatchID(sg.Header.MatchID),
		match.WithTurnLimit(sg.Header.Turns),
	}, opts...)
	m, err := match.New(g, match.Config{Mode: game.ModeSimulation, ContinueOnError: true}, opts...)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range sg.Players {
		actions := make([]game.Action, 0, len(p.Actions))
		for _, a := range p.Actions {
			actions = append(actions, game.Action(a))
		}
		if err := m.AddPlayer(agent.NewFixed(p.Name, actions), p.Team, match.AtCell(p.Location)); err != nil {
			return nil, nil, err
		}
	}
	if err := m.PlaceCheese(sg.Cheese); err != nil {
		return nil, nil, err
	}
	stats, err := m.Run(ctx)
	if err != nil {
		return m, nil, err
	}
	if got := m.State().Digest(); got != sg.FinalDigest {
		return m, stats, fmt.Errorf("%w: digest %s, saved %s", ErrDigestMismatch, got, sg.FinalDigest)
	}
	return m, stats, nil
}

func Write(path string, sg SaveGameV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, sg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// encode writes the JSON header line followed by the gob body, all inside
// one zstd stream.
func encode(w io.Writer, sg SaveGameV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(sg.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&sg); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := open(path)
	if err != nil {
		return h, err
	}
	defer closeFn()
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func Read(path string) (SaveGameV1, error) {
	var sg SaveGameV1
	br, closeFn, err := open(path)
	if err != nil {
		return sg, err
	}
	defer closeFn()

	// Skip the header line; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return sg, err
	}
	if err := gob.NewDecoder(br).Decode(&sg); err != nil {
		return sg, fmt.Errorf("gob decode: %w", err)
	}
	if sg.Header.Version != Version {
		return sg, fmt.Errorf("savegame: unsupported version %d", sg.Header.Version)
	}
	return sg, nil
}

func open(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return bufio.NewReaderSize(dec, 256*1024), func() { dec.Close(); _ = f.Close() }, nil
}

// FileName is the conventional save file name of a match.
func FileName(matchID string) string { return matchID + ".save.zst" }
