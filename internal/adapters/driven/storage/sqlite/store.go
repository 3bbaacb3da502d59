package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.IngestionRunStore = (*Store)(nil)

// DBName is the database filename inside the data directory.
const DBName = "ledger.db"

// Store persists ingestion runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha-rag/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha-rag", "data")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBName)

	// WAL lets status readers run while the coordinator writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending .up.sql migrations in version order.
func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_ingestion_runs.up.sql" is version 1.
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// Save stores or updates a run.
func (s *Store) Save(ctx context.Context, run *domain.IngestionRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, document_path, outcome, started_at, ended_at,
			pages, page_failures, links, fetched, fetch_failures, chunks, snapshot_version, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_path = excluded.document_path,
			outcome = excluded.outcome,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			pages = excluded.pages,
			page_failures = excluded.page_failures,
			links = excluded.links,
			fetched = excluded.fetched,
			fetch_failures = excluded.fetch_failures,
			chunks = excluded.chunks,
			snapshot_version = excluded.snapshot_version,
			error = excluded.error
	`, run.ID, run.DocumentPath, string(run.Outcome), toUnix(run.StartedAt), toUnix(run.EndedAt),
		run.Pages, run.PageFailures, run.Links, run.Fetched, run.FetchFailures, run.Chunks,
		int64(run.SnapshotVersion), run.Error)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

const runColumns = `id, document_path, outcome, started_at, ended_at,
	pages, page_failures, links, fetched, fetch_failures, chunks, snapshot_version, error`

// Get retrieves a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.IngestionRun, error) {
	if limit <= 0 {
		return []domain.IngestionRun{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs
		ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.IngestionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Prune keeps only the most recent keep runs.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ingestion_runs WHERE id NOT IN (
			SELECT id FROM ingestion_runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.IngestionRun, error) {
	var run domain.IngestionRun
	var outcome string
	var startedAt, endedAt, version int64
	if err := row.Scan(&run.ID, &run.DocumentPath, &outcome, &startedAt, &endedAt,
		&run.Pages, &run.PageFailures, &run.Links, &run.Fetched, &run.FetchFailures,
		&run.Chunks, &version, &run.Error); err != nil {
		return nil, err
	}
	run.Outcome = domain.IngestionOutcome(outcome)
	run.StartedAt = fromUnix(startedAt)
	run.EndedAt = fromUnix(endedAt)
	run.SnapshotVersion = uint64(version)
	return &run, nil
}

// toUnix stores times as Unix nanoseconds so ordering is numeric.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
