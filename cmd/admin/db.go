package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cheeserun.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory (sqlite default location)")
	matchID := fs.String("match", "", "match id (players)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "matches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	idx, err := indexdb.OpenFromEnv(filepath.Join(*dataDir, "index", "matches.sqlite"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := query(ctx, idx, q, *matchID, *limit, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func query(ctx context.Context, idx *indexdb.Index, q, matchID string, limit int, out io.Writer) error {
	enc := json.NewEncoder(out)
	switch q {
	case "matches":
		rows, err := idx.ListMatches(ctx, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			_ = enc.Encode(map[string]any{
				"match_id":    r.MatchID,
				"mode":        r.Mode,
				"status":      r.Status,
				"turns":       r.Turns,
				"maze":        fmt.Sprintf("%dx%d", r.Width, r.Height),
				"nb_cheese":   r.NbCheese,
				"digest":      r.Digest,
				"save_path":   r.SavePath,
				"error":       r.Error,
				"started_at":  r.StartedAt,
				"finished_at": r.FinishedAt,
			})
		}
	case "players":
		if matchID == "" {
			return fmt.Errorf("players: missing -match")
		}
		rows, err := idx.PlayerResults(ctx, matchID)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		for _, r := range rows {
			_ = enc.Encode(map[string]any{
				"player":  r.Player,
				"team":    r.Team,
				"score":   r.Score,
				"actions": r.Actions,
			})
		}
	case "turns":
		if matchID == "" {
			return fmt.Errorf("turns: missing -match")
		}
		n, err := idx.TurnCount(ctx, matchID)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		_ = enc.Encode(map[string]any{"match_id": matchID, "turns": n})
	default:
		return fmt.Errorf("unknown query %q (matches|players|turns)", q)
	}
	return nil
}
