package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"cheeserun.ai/internal/sim/game"
	"cheeserun.ai/internal/sim/match"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Match statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// Index keeps a queryable record of matches, their players and their turns.
// Turn rows are written asynchronously; the turn logs remain the source of
// truth.
type Index struct {
	dialect Dialect
	db      *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed        atomic.Bool
	dropTurnTotal atomic.Uint64
}

var _ match.TurnSink = (*Index)(nil)

// req is a queued turn row, or a flush marker when done is set.
type req struct {
	turn match.TurnRecord
	done chan struct{}
}

type MatchRow struct {
	MatchID     string
	Mode        string
	Status      string
	Turns       int
	Width       int
	Height      int
	NbCheese    int
	SeedMaze    int64
	SeedCheese  int64
	SeedPlayers int64
	Digest      string
	SavePath    string
	Error       string
	StartedAt   string
	FinishedAt  string
}

type PlayerRow struct {
	MatchID    string
	Player     string
	Team       string
	Score      string
	ScoreFloat float64
	Actions    map[string]int
}

// OpenFromEnv opens the index selected by DB_DIALECT (sqlite by default),
// using DB_SQLITE_PATH or DB_POSTGRES_DSN / DATABASE_URL.
func OpenFromEnv(defaultSQLitePath string) (*Index, error) {
	dialectRaw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if dialectRaw == "" {
		dialectRaw = string(DialectSQLite)
	}
	switch Dialect(dialectRaw) {
	case DialectSQLite:
		path := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH"))
		if path == "" {
			path = defaultSQLitePath
		}
		return OpenSQLite(path)
	case DialectPostgres:
		dsn := strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
		return Open(DialectPostgres, dsn)
	}
	return nil, fmt.Errorf("unsupported DB_DIALECT %q", dialectRaw)
}

func OpenSQLite(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return Open(DialectSQLite, path)
}

func Open(dialect Dialect, dsn string) (*Index, error) {
	driver := "sqlite"
	if dialect == DialectPostgres {
		driver = "pgx"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		if err := initPragmas(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Index{
		dialect: dialect,
		db:      db,
		ch:      make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			turns INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			nb_cheese INTEGER NOT NULL,
			seed_maze BIGINT NOT NULL,
			seed_cheese BIGINT NOT NULL,
			seed_players BIGINT NOT NULL,
			digest TEXT NOT NULL,
			save_path TEXT NOT NULL,
			error TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS player_results (
			match_id TEXT NOT NULL,
			player TEXT NOT NULL,
			team TEXT NOT NULL,
			score TEXT NOT NULL,
			score_float DOUBLE PRECISION NOT NULL,
			moves INTEGER NOT NULL,
			nothing INTEGER NOT NULL,
			mud INTEGER NOT NULL,
			miss INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			walls INTEGER NOT NULL,
			PRIMARY KEY (match_id, player)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_player_results_player ON player_results(player);`,
		`CREATE TABLE IF NOT EXISTS turns (
			match_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			digest TEXT NOT NULL,
			cheese_left INTEGER NOT NULL,
			collected INTEGER NOT NULL,
			PRIMARY KEY (match_id, turn)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Index) Dialect() Dialect { return s.dialect }

func (s *Index) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// upsertQuery builds an INSERT ... ON CONFLICT DO UPDATE understood by both
// SQLite and Postgres. Columns in keep are only written on insert.
func (s *Index) upsertQuery(table string, cols, key []string, keep ...string) string {
	ph := make([]string, len(cols))
	var set []string
	isKey := map[string]bool{}
	for _, k := range append(key, keep...) {
		isKey[k] = true
	}
	for i, c := range cols {
		ph[i] = s.bind(i + 1)
		if !isKey[c] {
			set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(cols, ", "),
		strings.Join(ph, ", "),
		strings.Join(key, ", "),
		strings.Join(set, ", "),
	)
}

func (s *Index) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

var matchCols = []string{"match_id", "mode", "status", "turns", "width", "height", "nb_cheese", "seed_maze", "seed_cheese", "seed_players", "digest", "save_path", "error", "started_at", "finished_at"}

// RecordMatch inserts or updates a match row.
func (s *Index) RecordMatch(ctx context.Context, r MatchRow) error {
	if r.MatchID == "" {
		return errors.New("indexdb: empty match id")
	}
	if r.StartedAt == "" {
		r.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, s.upsertQuery("matches", matchCols, []string{"match_id"}),
		r.MatchID, r.Mode, r.Status, r.Turns, r.Width, r.Height, r.NbCheese,
		r.SeedMaze, r.SeedCheese, r.SeedPlayers, r.Digest, r.SavePath, r.Error,
		r.StartedAt, r.FinishedAt)
	return err
}

var playerCols = []string{"match_id", "player", "team", "score", "score_float", "moves", "nothing", "mud", "miss", "errors", "walls"}

// RecordResult stores the final statistics of a match and marks it finished.
func (s *Index) RecordResult(ctx context.Context, r MatchRow, teams map[string]string, stats *game.Stats) error {
	r.Status = StatusFinished
	if stats == nil {
		r.Status = StatusAborted
	} else {
		r.Turns = stats.Turns
	}
	if r.FinishedAt == "" {
		r.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if r.StartedAt == "" {
		r.StartedAt = r.FinishedAt
	}
	if _, err := tx.ExecContext(ctx, s.upsertQuery("matches", matchCols, []string{"match_id"}, "started_at"),
		r.MatchID, r.Mode, r.Status, r.Turns, r.Width, r.Height, r.NbCheese,
		r.SeedMaze, r.SeedCheese, r.SeedPlayers, r.Digest, r.SavePath, r.Error,
		r.StartedAt, r.FinishedAt); err != nil {
		return err
	}
	if stats != nil {
		stmt, err := tx.PrepareContext(ctx, s.upsertQuery("player_results", playerCols, []string{"match_id", "player"}))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for p, ps := range stats.Players {
			a := ps.Actions
			moves := a[game.StatNorth] + a[game.StatEast] + a[game.StatSouth] + a[game.StatWest]
			f, _ := ps.Score.Float64()
			if _, err := stmt.ExecContext(ctx, r.MatchID, p, teams[p], ps.Score.RatString(), f,
				moves, a[game.StatNothing], a[game.StatMud], a[game.StatMiss], a[game.StatError], a[game.StatWall]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// WriteTurn queues a turn row. It never blocks the match.
func (s *Index) WriteTurn(rec match.TurnRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{turn: rec}:
	default:
		// Drop if the indexer falls behind.
		s.dropTurnTotal.Add(1)
	}
	return nil
}

type QueueStats struct {
	DropTurnTotal uint64
	QueueDepth    int
	QueueCapacity int
}

func (s *Index) Stats() QueueStats {
	return QueueStats{
		DropTurnTotal: s.dropTurnTotal.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// Flush waits until the turn rows queued so far are committed.
func (s *Index) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Index) loop() {
	ctx := context.Background()
	insertTurn, _ := s.db.Prepare(s.upsertQuery("turns", []string{"match_id", "turn", "digest", "cheese_left", "collected"}, []string{"match_id", "turn"}))
	defer func() {
		if insertTurn != nil {
			_ = insertTurn.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.done != nil {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil || insertTurn == nil {
			continue
		}
		collected := 0
		for _, ps := range r.turn.Report.Collected {
			if len(ps) > 0 {
				collected++
			}
		}
		if _, err := tx.Stmt(insertTurn).Exec(r.turn.MatchID, r.turn.Turn, r.turn.Digest, r.turn.CheeseLeft, collected); err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

// ListMatches returns the most recent matches first.
func (s *Index) ListMatches(ctx context.Context, limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT %s FROM matches ORDER BY started_at DESC, match_id LIMIT %s`, strings.Join(matchCols, ", "), s.bind(1))
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MatchRow
	for rows.Next() {
		var r MatchRow
		if err := rows.Scan(&r.MatchID, &r.Mode, &r.Status, &r.Turns, &r.Width, &r.Height, &r.NbCheese,
			&r.SeedMaze, &r.SeedCheese, &r.SeedPlayers, &r.Digest, &r.SavePath, &r.Error,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlayerResults returns the players of one match, best score first.
func (s *Index) PlayerResults(ctx context.Context, matchID string) ([]PlayerRow, error) {
	q := fmt.Sprintf(`SELECT %s FROM player_results WHERE match_id = %s ORDER BY score_float DESC, player`, strings.Join(playerCols, ", "), s.bind(1))
	rows, err := s.db.QueryContext(ctx, q, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerRow
	for rows.Next() {
		var (
			r                                    PlayerRow
			moves, nothing, mud, miss, errs, wal int
		)
		if err := rows.Scan(&r.MatchID, &r.Player, &r.Team, &r.Score, &r.ScoreFloat, &moves, &nothing, &mud, &miss, &errs, &wal); err != nil {
			return nil, err
		}
		r.Actions = map[string]int{
			"moves":          moves,
			game.StatNothing: nothing,
			game.StatMud:     mud,
			game.StatMiss:    miss,
			game.StatError:   errs,
			game.StatWall:    wal,
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TurnCount returns how many turn rows were indexed for a match.
func (s *Index) TurnCount(ctx context.Context, matchID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM turns WHERE match_id = %s`, s.bind(1)), matchID).Scan(&n)
	return n, err
}
