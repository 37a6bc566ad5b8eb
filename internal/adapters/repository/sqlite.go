package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/okian/stride/internal/domain/pipeline"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its filesystem and dialect in package state.
var migrateMu sync.Mutex

// SQLiteStore persists runs in a SQLite database. Results are stored as JSON.
type SQLiteStore struct {
	db  *sql.DB
	cfg settings
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	cfg := newSettings(opts)
	// SQLite won't create parent directories.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_fk=1&_pragma=busy_timeout(8000)&mode=rwc", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, cfg.log); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), db.Close())
	}
	s := &SQLiteStore{db: db, cfg: cfg}
	metrics.UpdateStoredRuns(s.Count(ctx))
	cfg.log.Info(ctx, "sqlite store ready", logger.String("path", path))
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB, log logger.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{ctx: ctx, log: log})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// gooseLogger routes migration output to the service logger.
type gooseLogger struct {
	ctx context.Context
	log logger.Logger
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Debug(g.ctx, fmt.Sprintf(format, v...), logger.String("component", "goose"))
}

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error(g.ctx, fmt.Sprintf(format, v...), logger.String("component", "goose"))
}

const upsertRun = `
INSERT INTO runs (id, status, source, digest, outcome, error, created_at, updated_at, result)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    source = excluded.source,
    digest = excluded.digest,
    outcome = excluded.outcome,
    error = excluded.error,
    updated_at = excluded.updated_at,
    result = excluded.result`

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, run Run) error {
	defer observe("save", time.Now())
	if err := validate(run); err != nil {
		return err
	}
	var blob []byte
	if run.Result != nil {
		var err error
		if blob, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("encode result of run %s: %w", run.ID, err)
		}
	}
	_, err := s.db.ExecContext(ctx, upsertRun,
		run.ID, string(run.Status), run.Source, run.Digest, run.Outcome, run.Error,
		run.CreatedAt.UnixNano(), run.UpdatedAt.UnixNano(), blob)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	metrics.UpdateStoredRuns(s.Count(ctx))
	return nil
}

const selectRun = `SELECT id, status, source, digest, outcome, error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, extra ...any) (Run, error) {
	var (
		r                Run
		status           string
		created, updated int64
	)
	dest := append([]any{&r.ID, &status, &r.Source, &r.Digest, &r.Outcome, &r.Error, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return r, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	defer observe("get", time.Now())
	var blob []byte
	row := s.db.QueryRowContext(ctx, selectRun+`, result FROM runs WHERE id = ?`, id)
	r, err := scanRun(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if len(blob) > 0 {
		var res pipeline.Result
		if err := json.Unmarshal(blob, &res); err != nil {
			return Run{}, fmt.Errorf("decode result of run %s: %w", id, err)
		}
		r.Result = &res
	}
	return r, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, n int) (runs []Run, err error) {
	defer observe("list", time.Now())
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRun+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { err = multierr.Append(err, rows.Close()) }()

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		s.cfg.log.Warn(ctx, "count runs failed", logger.Error(err))
		return 0
	}
	return n
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
