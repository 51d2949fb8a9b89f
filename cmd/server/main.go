package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"cheeserun.ai/internal/persistence/archive"
	"cheeserun.ai/internal/persistence/indexdb"
	persistlog "cheeserun.ai/internal/persistence/log"
	"cheeserun.ai/internal/persistence/savegame"
	"cheeserun.ai/internal/render"
	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
	"cheeserun.ai/internal/sim/maze"
	"cheeserun.ai/internal/sim/tuning"
	"cheeserun.ai/internal/transport/natsfeed"
	"cheeserun.ai/internal/transport/observer"
	"cheeserun.ai/internal/transport/ws"
)

type serverConfig struct {
	Addr        string
	ConfigPath  string
	DataDir     string
	Token       string
	JoinTimeout time.Duration
	DisableDB   bool
	NATSURL     string
	NATSPrefix  string
}

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configPath  = flag.String("config", "./configs/match.yaml", "match config path")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		envFile     = flag.String("env", ".env", "dotenv file with environment overrides (optional)")
		token       = flag.String("token", "", "token remote players must present (or CHEESERUN_TOKEN)")
		joinTimeout = flag.Duration("join_timeout", 2*time.Minute, "how long to wait for remote players")
		disableDB   = flag.Bool("disable_db", false, "disable the match index")
		natsURL     = flag.String("nats", "", "NATS server to publish frames to (or CHEESERUN_NATS_URL)")
		noColor     = flag.Bool("no_color", false, "disable colored logs")
	)
	flag.Parse()

	envErr := godotenv.Load(*envFile)
	sl := newSlogger(os.Stderr, *noColor || envBool("NO_COLOR", false))
	logger := component(sl, "server")
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Printf("env file %s: %v", *envFile, envErr)
	}

	cfg := serverConfig{
		Addr:        *addr,
		ConfigPath:  *configPath,
		DataDir:     *dataDir,
		Token:       envString("CHEESERUN_TOKEN", *token),
		JoinTimeout: *joinTimeout,
		DisableDB:   *disableDB || envBool("CHEESERUN_DISABLE_DB", false),
		NATSURL:     envString("CHEESERUN_NATS_URL", *natsURL),
		NATSPrefix:  envString("CHEESERUN_NATS_PREFIX", natsfeed.DefaultPrefix),
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, sl, os.Stdout); err != nil {
		logger.Printf("match failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig, sl *slog.Logger, out io.Writer) error {
	logger := component(sl, "server")

	tune, err := tuning.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	seeds := tune.Seeds(rand.Int64)
	grid, err := maze.Generate(maze.Kind(tune.Maze.Kind), tune.MazeParams(seeds.Maze))
	if err != nil {
		return fmt.Errorf("maze: %w", err)
	}
	matchCfg := tune.MatchConfig()
	matchID := uuid.NewString()
	matchDir := filepath.Join(cfg.DataDir, "matches", matchID)
	logger.Printf("match %s: %dx%d maze, seeds maze=%d cheese=%d players=%d", matchID, grid.Width(), grid.Height(), seeds.Maze, seeds.Cheese, seeds.Players)

	// Presenters and turn sinks.
	var presenters render.Multi
	if mode, _ := render.ParseMode(tune.RenderMode); mode != render.ModeNone {
		presenters = append(presenters, render.NewShell(out, mode == render.ModeANSI, tune.RenderSimplified))
	}
	obs := observer.NewServer(matchID, component(sl, "observer"))
	presenters = append(presenters, obs)

	turnLog := persistlog.NewTurnLogger(matchDir)
	defer turnLog.Close()
	sinks := match.TurnSinks{turnLog}

	if cfg.NATSURL != "" {
		nc, err := natsfeed.Connect(cfg.NATSURL, component(sl, "nats"))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()
		feed := natsfeed.New(nc, cfg.NATSPrefix, matchID, component(sl, "nats"))
		presenters = append(presenters, feed)
		sinks = append(sinks, feed)
	}

	var idx *indexdb.Index
	if !cfg.DisableDB {
		idx, err = indexdb.OpenFromEnv(filepath.Join(cfg.DataDir, "index", "matches.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
	}

	uploader, err := archiveFromEnv(component(sl, "archive"))
	if err != nil {
		return err
	}
	defer uploader.Close()

	opts := []match.Option{
		match.WithMatchID(matchID),
		match.WithLogger(component(sl, "match")),
		match.WithPresenter(presenters),
		match.WithTurnSink(sinks),
		match.WithPlayerSeed(seeds.Players),
	}
	if tune.MaxTurns > 0 {
		opts = append(opts, match.WithTurnLimit(tune.MaxTurns))
	}
	m, err := match.New(grid, matchCfg, opts...)
	if err != nil {
		return err
	}

	remote := ws.NewServer(grid, ws.Options{
		MatchID:           matchID,
		Token:             cfg.Token,
		PreprocessingTime: matchCfg.PreprocessingTime,
		TurnTime:          matchCfg.TurnTime,
	}, component(sl, "ws"))
	seats, err := addPlayers(m, tune.Players, remote)
	if err != nil {
		return err
	}
	if err := placeCheese(m, tune.Cheese, seeds.Cheese); err != nil {
		return fmt.Errorf("cheese: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", remote.Handler())
	mux.HandleFunc("/v1/observer/frame", obs.FrameHandler())
	mux.HandleFunc("/v1/observer/ws", obs.WSHandler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
		}
	}()
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	if seats > 0 {
		logger.Printf("waiting up to %s for %d remote player(s) on /v1/ws", cfg.JoinTimeout, seats)
		wctx, wcancel := context.WithTimeout(ctx, cfg.JoinTimeout)
		err := remote.WaitConnected(wctx)
		wcancel()
		if err != nil {
			return fmt.Errorf("remote players did not join: %w", err)
		}
	}

	row := indexdb.MatchRow{
		MatchID:     matchID,
		Mode:        string(matchCfg.Mode),
		Status:      indexdb.StatusRunning,
		Width:       grid.Width(),
		Height:      grid.Height(),
		NbCheese:    len(m.State().Cheese),
		SeedMaze:    seeds.Maze,
		SeedCheese:  seeds.Cheese,
		SeedPlayers: seeds.Players,
		StartedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if idx != nil {
		if err := idx.RecordMatch(ctx, row); err != nil {
			logger.Printf("index: record match: %v", err)
		}
	}

	stats, runErr := m.Run(ctx)

	final := m.State()
	row.Digest = final.Digest()
	if runErr != nil {
		row.Error = runErr.Error()
	}
	if tune.SaveGame && runErr == nil {
		sg := savegame.FromMatch(m, savegame.SeedsV1{Maze: seeds.Maze, Cheese: seeds.Cheese, Players: seeds.Players}, stats)
		path := filepath.Join(tune.SavePath, savegame.FileName(matchID))
		if err := savegame.Write(path, sg); err != nil {
			logger.Printf("save game: %v", err)
		} else {
			row.SavePath = path
			logger.Printf("saved game to %s", path)
			uploader.Enqueue(matchID, path)
		}
	}

	results := persistlog.NewResultLogger(matchDir)
	if err := results.WriteResult(resultEntry(matchID, matchCfg.Mode, stats, runErr)); err != nil {
		logger.Printf("result log: %v", err)
	}
	_ = results.Close()
	_ = turnLog.Close()
	for _, p := range []string{turnLog.Path(), filepath.Join(matchDir, "result.jsonl.zst")} {
		if _, err := os.Stat(p); err == nil {
			uploader.Enqueue(matchID, p)
		}
	}

	if idx != nil {
		fctx, fcancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := idx.Flush(fctx); err != nil {
			logger.Printf("index: flush: %v", err)
		}
		if err := idx.RecordResult(fctx, row, teamsOf(final, m.Players()), stats); err != nil {
			logger.Printf("index: record result: %v", err)
		}
		fcancel()
		if st := idx.Stats(); st.DropTurnTotal > 0 {
			logger.Printf("index: dropped %d turn rows", st.DropTurnTotal)
		}
	}

	if runErr != nil {
		return runErr
	}
	printSummary(out, m.Players(), final, stats)
	return nil
}

func resultEntry(matchID string, mode game.Mode, stats *game.Stats, runErr error) persistlog.ResultEntry {
	e := persistlog.ResultEntry{MatchID: matchID, Mode: string(mode)}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if stats == nil {
		return e
	}
	e.Turns = stats.Turns
	e.Scores = map[string]string{}
	e.Actions = map[string]map[string]int{}
	for p, ps := range stats.Players {
		e.Scores[p] = ps.Score.RatString()
		e.Actions[p] = ps.Actions
	}
	return e
}

func teamsOf(st *game.State, players []string) map[string]string {
	out := make(map[string]string, len(players))
	for _, p := range players {
		if team, ok := st.TeamOf(p); ok {
			out[p] = team
		}
	}
	return out
}

func printSummary(w io.Writer, players []string, st *game.State, stats *game.Stats) {
	fmt.Fprintf(w, "match over after %d turns\n", stats.Turns)
	for _, p := range players {
		ps := stats.Players[p]
		f, _ := ps.Score.Float64()
		fmt.Fprintf(w, "  %-16s score=%-8s (%.3f) moves=%d mud=%d miss=%d errors=%d walls=%d\n",
			p, st.Score(p).RatString(), f,
			ps.Actions[game.StatNorth]+ps.Actions[game.StatEast]+ps.Actions[game.StatSouth]+ps.Actions[game.StatWest],
			ps.Actions[game.StatMud], ps.Actions[game.StatMiss], ps.Actions[game.StatError], ps.Actions[game.StatWall])
	}
}

// archiveFromEnv builds the artifact uploader when CHEESERUN_ARCHIVE is set.
// A nil uploader ignores every call.
func archiveFromEnv(logger *log.Logger) (*archive.Uploader, error) {
	if !envBool("CHEESERUN_ARCHIVE", false) {
		return nil, nil
	}
	bucket, err := archive.NewBucket(archive.BucketConfig{
		Endpoint:        envString("CHEESERUN_ARCHIVE_ENDPOINT", ""),
		Bucket:          envString("CHEESERUN_ARCHIVE_BUCKET", ""),
		Region:          envString("CHEESERUN_ARCHIVE_REGION", "auto"),
		AccessKeyID:     envString("CHEESERUN_ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: envString("CHEESERUN_ARCHIVE_SECRET_ACCESS_KEY", ""),
	})
	if err != nil {
		return nil, fmt.Errorf("CHEESERUN_ARCHIVE=true: %w", err)
	}
	prefix := envString("CHEESERUN_ARCHIVE_PREFIX", "matches")
	return archive.NewUploader(bucket, prefix, envInt("CHEESERUN_ARCHIVE_WORKERS", 2), 64, logger), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
