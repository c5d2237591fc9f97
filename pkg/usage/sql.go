package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // registers "sqlite" (pure Go)
)

// SQLConfig configures the SQLite-backed store.
type SQLConfig struct {
	// Driver is "sqlite" or "sqlite3".
	// Default: "sqlite"
	Driver string

	// Path is the database file. ":memory:" keeps the database in process.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLStore implements Store on SQLite.
type SQLStore struct {
	db        *sql.DB
	closeOnce sync.Once

	incrementStmt *sql.Stmt
	readStmt      *sql.Stmt
	pruneStmt     *sql.Stmt
}

// NewSQLStore opens the database, creates the schema and prepares statements.
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// buildDSN renders the pragmas in the syntax each driver understands.
func buildDSN(cfg SQLConfig) (string, error) {
	ms := cfg.BusyTimeout.Milliseconds()
	switch cfg.Driver {
	case "sqlite":
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			cfg.Path, ms), nil
	case "sqlite3":
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
			cfg.Path, ms), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS usage_daily (
			day               TEXT    NOT NULL,
			caller            TEXT    NOT NULL,
			provider          TEXT    NOT NULL,
			model             TEXT    NOT NULL,
			requests          INTEGER NOT NULL DEFAULT 0,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at        INTEGER NOT NULL,
			PRIMARY KEY (day, caller, provider, model)
		);
		CREATE INDEX IF NOT EXISTS idx_usage_daily_caller ON usage_daily(caller, day);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLStore) prepareStatements(ctx context.Context) error {
	var err error

	s.incrementStmt, err = s.db.PrepareContext(ctx, `
		INSERT INTO usage_daily (day, caller, provider, model, requests, prompt_tokens, completion_tokens, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(day, caller, provider, model) DO UPDATE SET
			requests          = requests + 1,
			prompt_tokens     = prompt_tokens + excluded.prompt_tokens,
			completion_tokens = completion_tokens + excluded.completion_tokens,
			updated_at        = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare increment statement: %w", err)
	}

	s.readStmt, err = s.db.PrepareContext(ctx, `
		SELECT COALESCE(SUM(requests), 0), COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0)
		FROM usage_daily
		WHERE caller = ? AND day = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare read statement: %w", err)
	}

	s.pruneStmt, err = s.db.PrepareContext(ctx, `DELETE FROM usage_daily WHERE day < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune statement: %w", err)
	}

	return nil
}

// Increment implements Store.
func (s *SQLStore) Increment(ctx context.Context, rec Record) error {
	_, err := s.incrementStmt.ExecContext(ctx,
		DayKey(rec.Time), rec.Caller, rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.Time.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Read implements Store.
func (s *SQLStore) Read(ctx context.Context, caller string, day time.Time) (Totals, error) {
	var t Totals
	err := s.readStmt.QueryRowContext(ctx, caller, DayKey(day)).
		Scan(&t.Requests, &t.PromptTokens, &t.CompletionTokens)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to read usage: %w", err)
	}
	return t, nil
}

// Prune implements Store.
func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pruneStmt.ExecContext(ctx, DayKey(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{s.incrementStmt, s.readStmt, s.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		err = s.db.Close()
	})
	return err
}
