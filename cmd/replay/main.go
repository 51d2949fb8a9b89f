package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	persistlog "cheeserun.ai/internal/persistence/log"
	"cheeserun.ai/internal/persistence/savegame"
	"cheeserun.ai/internal/sim/match"
)

func main() {
	var (
		savePath = flag.String("save", "", "path to <match>.save.zst")
		turnsLog = flag.String("turns", "", "turns.jsonl.zst of the same match to verify turn by turn (optional)")
		verbose  = flag.Bool("v", false, "log the replayed match")
	)
	flag.Parse()

	if *savePath == "" {
		fmt.Fprintln(os.Stderr, "missing -save")
		os.Exit(2)
	}
	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "[replay] ", log.LstdFlags|log.Lmicroseconds)
	}
	if err := run(context.Background(), *savePath, *turnsLog, logger, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type digestSink struct {
	digests map[int]string
}

func (d *digestSink) WriteTurn(rec match.TurnRecord) error {
	d.digests[rec.Turn] = rec.Digest
	return nil
}

func run(ctx context.Context, savePath, turnsLog string, logger *log.Logger, out io.Writer) error {
	sg, err := savegame.Read(savePath)
	if err != nil {
		return fmt.Errorf("read save: %w", err)
	}
	fmt.Fprintf(out, "save v%d match=%s mode=%s turns=%d maze=%dx%d cells=%d players=%d cheese=%d\n",
		sg.Header.Version, sg.Header.MatchID, sg.Mode, sg.Header.Turns, sg.Width, sg.Height,
		len(sg.Cells), len(sg.Players), len(sg.Cheese))

	sink := &digestSink{digests: map[int]string{}}
	m, stats, err := sg.Replay(ctx, logger, match.WithTurnSink(sink))
	if err != nil && !errors.Is(err, savegame.ErrDigestMismatch) {
		return fmt.Errorf("replay: %w", err)
	}
	diverged := err != nil
	if turnsLog != "" {
		first, checked, verr := verifyTurns(turnsLog, sink.digests)
		if verr != nil {
			return verr
		}
		if first > 0 {
			return fmt.Errorf("turn %d: digest differs from the turn log (%d turns checked)", first, checked)
		}
		fmt.Fprintf(out, "turn log ok: %d turns\n", checked)
	}
	if diverged {
		return err
	}

	final := m.State()
	for _, p := range sg.Players {
		fmt.Fprintf(out, "  %-16s team=%-10s score=%s saved=%s\n", p.Name, p.Team, final.Score(p.Name).RatString(), sg.Scores[p.Name])
	}
	fmt.Fprintf(out, "replay ok: %d turns digest=%s\n", stats.Turns, sg.FinalDigest)
	return nil
}

// verifyTurns compares logged digests with the replayed ones and returns the
// first differing turn (0 when all match).
func verifyTurns(path string, replayed map[int]string) (first, checked int, err error) {
	err = persistlog.ReadJSONLZstd(path, func(line []byte) error {
		var rec struct {
			Turn   int    `json:"turn"`
			Digest string `json:"digest"`
		}
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		checked++
		if first == 0 && replayed[rec.Turn] != rec.Digest {
			first = rec.Turn
		}
		return nil
	})
	return first, checked, err
}
