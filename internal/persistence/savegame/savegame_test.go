package savegame

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cheeserun.ai/internal/sim/agent"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/maze"
)

func playedMatch(t *testing.T) (*match.Match, *game.Stats) {
	t.Helper()
	g, err := maze.Random(maze.Params{Width: 7, Height: 5, CellPercentage: 90, WallPercentage: 50, MudPercentage: 30, MudRange: [2]int{2, 4}, Seed: 9})
	if err != nil {
		t.Fatalf("maze: %v", err)
	}
	m, err := match.New(g, match.Config{Mode: game.ModeSynchronous}, match.WithMatchID("saved"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.AddPlayer(agent.NewGreedy("greedy"), "cats", match.AtCenter()); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := m.AddPlayer(agent.NewRandom("random", 4), "rats", match.AtPrevious()); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := m.ScatterCheese(5, 2); err != nil {
		t.Fatalf("ScatterCheese: %v", err)
	}
	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return m, stats
}

func TestWriteReadReplay(t *testing.T) {
	m, stats := playedMatch(t)
	sg := FromMatch(m, SeedsV1{Maze: 9, Cheese: 2}, stats)
	path := filepath.Join(t.TempDir(), "saves", FileName("saved"))
	if err := Write(path, sg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.MatchID != "saved" || h.Turns != stats.Turns || h.Version != Version {
		t.Fatalf("header=%+v", h)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Players) != 2 || got.Players[0].Name != "greedy" || got.Seeds.Maze != 9 {
		t.Fatalf("players=%+v seeds=%+v", got.Players, got.Seeds)
	}

	replayed, rstats, err := got.Replay(context.Background(), nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rstats.Turns != stats.Turns {
		t.Fatalf("replay turns=%d want %d", rstats.Turns, stats.Turns)
	}
	for p, want := range got.Scores {
		if s := replayed.State().Score(p).RatString(); s != want {
			t.Fatalf("%s score=%s want %s", p, s, want)
		}
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestEncodeReportsWriteErrors(t *testing.T) {
	m, stats := playedMatch(t)
	sg := FromMatch(m, SeedsV1{}, stats)

	diskFull := errors.New("disk full")
	if err := encode(failingWriter{err: diskFull}, sg); !errors.Is(err, diskFull) {
		t.Fatalf("err=%v want %v", err, diskFull)
	}

	var buf bytes.Buffer
	if err := encode(&buf, sg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("encode wrote nothing")
	}
}

func TestWriteFailsWhenParentIsAFile(t *testing.T) {
	m, stats := playedMatch(t)
	sg := FromMatch(m, SeedsV1{}, stats)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := Write(blocker, sg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(filepath.Join(blocker, FileName("nested")), sg); err == nil {
		t.Fatalf("expected error writing below a regular file")
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	m, stats := playedMatch(t)
	sg := FromMatch(m, SeedsV1{}, stats)
	sg.FinalDigest = "0000"
	if _, _, err := sg.Replay(context.Background(), nil); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err=%v want ErrDigestMismatch", err)
	}
}

func TestMazeRoundTrip(t *testing.T) {
	m, stats := playedMatch(t)
	sg := FromMatch(m, SeedsV1{}, stats)
	g, err := sg.Maze()
	if err != nil {
		t.Fatalf("Maze: %v", err)
	}
	orig := m.Grid()
	for v := 0; v < orig.Width()*orig.Height(); v++ {
		if orig.Exists(v) != g.Exists(v) {
			t.Fatalf("cell %d existence differs", v)
		}
		for _, u := range orig.Neighbors(v) {
			w1, _ := orig.Weight(v, u)
			if w2, ok := g.Weight(v, u); !ok || w1 != w2 {
				t.Fatalf("edge %d-%d: %d vs %d", v, u, w1, w2)
			}
		}
	}
}
