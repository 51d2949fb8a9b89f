package indexdb

import (
	"context"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
)

func openTemp(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "index.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_MatchLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := openTemp(t)

	row := MatchRow{MatchID: "m1", Mode: "standard", Status: StatusRunning, Width: 15, Height: 13, NbCheese: 21, SeedMaze: 42}
	if err := idx.RecordMatch(ctx, row); err != nil {
		t.Fatalf("RecordMatch: %v", err)
	}

	for turn := 1; turn <= 3; turn++ {
		_ = idx.WriteTurn(match.TurnRecord{
			MatchID:    "m1",
			Turn:       turn,
			Report:     game.Report{Collected: map[int][]string{turn: {"rat"}}},
			CheeseLeft: 21 - turn,
			Digest:     "d",
		})
	}
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n, err := idx.TurnCount(ctx, "m1"); err != nil || n != 3 {
		t.Fatalf("TurnCount=%d err=%v", n, err)
	}

	stats := game.NewStats([]string{"rat", "python"})
	stats.Turns = 3
	stats.Players["rat"].Score = big.NewRat(5, 2)
	stats.Players["rat"].Actions[game.StatEast] = 2
	stats.Players["rat"].Actions[game.StatMud] = 1
	stats.Players["python"].Score = big.NewRat(1, 2)
	stats.Players["python"].Actions[game.StatMiss] = 1
	teams := map[string]string{"rat": "mice", "python": "snakes"}
	if err := idx.RecordResult(ctx, row, teams, stats); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	matches, err := idx.ListMatches(ctx, 10)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Status != StatusFinished || matches[0].Turns != 3 || matches[0].SeedMaze != 42 {
		t.Fatalf("matches=%+v", matches)
	}
	if matches[0].FinishedAt == "" {
		t.Fatalf("finished_at not set")
	}

	players, err := idx.PlayerResults(ctx, "m1")
	if err != nil {
		t.Fatalf("PlayerResults: %v", err)
	}
	if len(players) != 2 || players[0].Player != "rat" || players[0].Score != "5/2" || players[0].Team != "mice" {
		t.Fatalf("players=%+v", players)
	}
	if players[0].Actions["moves"] != 2 || players[0].Actions[game.StatMud] != 1 || players[1].Actions[game.StatMiss] != 1 {
		t.Fatalf("actions=%v / %v", players[0].Actions, players[1].Actions)
	}
}

func TestIndex_AbortedMatch(t *testing.T) {
	ctx := context.Background()
	idx := openTemp(t)
	row := MatchRow{MatchID: "m2", Mode: "synchronous", Error: "player crashed"}
	if err := idx.RecordResult(ctx, row, nil, nil); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}
	matches, err := idx.ListMatches(ctx, 0)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 1 || matches[0].Status != StatusAborted || matches[0].Error != "player crashed" {
		t.Fatalf("matches=%+v", matches)
	}
}

func TestIndex_QueueDropStats(t *testing.T) {
	s := &Index{ch: make(chan req, 1)}
	_ = s.WriteTurn(match.TurnRecord{Turn: 1})
	_ = s.WriteTurn(match.TurnRecord{Turn: 2})
	st := s.Stats()
	if st.DropTurnTotal != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestUpsertQueryDialects(t *testing.T) {
	lite := (&Index{dialect: DialectSQLite}).upsertQuery("t", []string{"a", "b"}, []string{"a"})
	pg := (&Index{dialect: DialectPostgres}).upsertQuery("t", []string{"a", "b"}, []string{"a"})
	if !strings.Contains(lite, "VALUES (?, ?)") || !strings.Contains(pg, "VALUES ($1, $2)") {
		t.Fatalf("lite=%q pg=%q", lite, pg)
	}
	if !strings.Contains(pg, "DO UPDATE SET b = excluded.b") {
		t.Fatalf("pg=%q", pg)
	}
}

func TestOpenFromEnv_RejectsUnknownDialect(t *testing.T) {
	t.Setenv("DB_DIALECT", "oracle")
	if _, err := OpenFromEnv(""); err == nil {
		t.Fatalf("expected error")
	}
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("DB_POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := OpenFromEnv(""); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
