// Package registry records corpus runs and the outcome of every document
// they touched, in PostgreSQL for shared deployments or in a local SQLite
// file for single-machine use.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/postgres"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS corpus_runs (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    input       TEXT NOT NULL,
    output      TEXT NOT NULL,
    status      TEXT NOT NULL,
    documents   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    labels      TEXT NOT NULL DEFAULT '{}',
    error       TEXT NOT NULL DEFAULT '',
    started_at  BIGINT NOT NULL,
    finished_at BIGINT
);
CREATE TABLE IF NOT EXISTS corpus_documents (
    run_id     TEXT NOT NULL REFERENCES corpus_runs(id),
    path       TEXT NOT NULL,
    status     TEXT NOT NULL,
    labels     TEXT NOT NULL DEFAULT '{}',
    error      TEXT NOT NULL DEFAULT '',
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (run_id, path)
)`

// Run is one recorded batch.
type Run struct {
	ID         string
	Kind       string
	Input      string
	Output     string
	Status     string
	Documents  int
	Failed     int
	Labels     map[string]int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Document is the recorded outcome of one document of a run.
type Document struct {
	Path      string
	Status    string
	Labels    map[string]int
	Error     string
	UpdatedAt time.Time
}

// Store persists runs.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Store on db.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{
		db:      db,
		dialect: d,
		logger:  slog.Default().With("component", "registry"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewPostgres returns a Store on a PostgreSQL client.
func NewPostgres(c *postgres.Client) *Store {
	return New(c.DB, Postgres)
}

// OpenSQLite opens (creating if needed) a registry file.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry %s: %w", path, err)
	}
	// one writer; concurrent batch workers share it
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates the registry tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating registry: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders for the store's dialect.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	return err
}

// StartRun records a new running batch and returns its id.
func (s *Store) StartRun(ctx context.Context, kind, input, output string) (string, error) {
	id := uuid.NewString()
	err := s.exec(ctx,
		`INSERT INTO corpus_runs (id, kind, input, output, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, kind, input, output, RunRunning, s.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	s.logger.Info("run started", "run_id", id, "kind", kind, "input", input)
	return id, nil
}

// FinishRun records the totals of a run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, documents, failed int, labels map[string]int, runErr error) error {
	data, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	status, msg := RunFinished, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	err = s.exec(ctx,
		`UPDATE corpus_runs SET status = ?, documents = ?, failed = ?, labels = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, documents, failed, data, msg, s.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	s.logger.Info("run finished", "run_id", id, "status", status, "documents", documents, "failed", failed)
	return nil
}

// RecordDocument stores the outcome of one document, replacing an earlier
// record of the same path in the run.
func (s *Store) RecordDocument(ctx context.Context, runID, path, status string, labels map[string]int, docErr error) error {
	data, err := encodeLabels(labels)
	if err != nil {
		return err
	}
	msg := ""
	if docErr != nil {
		msg = docErr.Error()
	}
	err = s.exec(ctx,
		`INSERT INTO corpus_documents (run_id, path, status, labels, error, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, path) DO UPDATE SET status = excluded.status, labels = excluded.labels,
		 error = excluded.error, updated_at = excluded.updated_at`,
		runID, path, status, data, msg, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording document %s: %w", path, err)
	}
	return nil
}

// Observer returns a batch observer recording documents under runID.
// Recording failures are logged and never stop the batch.
func (s *Store) Observer(runID string) *RunObserver {
	return &RunObserver{store: s, runID: runID}
}

// RunObserver records batch documents into a run.
type RunObserver struct {
	store *Store
	runID string
}

func (o *RunObserver) DocumentDone(ctx context.Context, path, status string, labels map[string]int, err error) {
	if recErr := o.store.RecordDocument(ctx, o.runID, path, status, labels, err); recErr != nil {
		o.store.logger.Error("failed to record document", "run_id", o.runID, "path", path, "error", recErr)
	}
}

const runColumns = `id, kind, input, output, status, documents, failed, labels, error, started_at, finished_at`

// GetRun loads one run. An unknown id is an InputUnavailable error.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM corpus_runs WHERE id = ?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.InputUnavailable("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns the last limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+runColumns+` FROM corpus_runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Documents returns the recorded documents of a run in path order.
func (s *Store) Documents(ctx context.Context, runID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT path, status, labels, error, updated_at FROM corpus_documents WHERE run_id = ? ORDER BY path`), runID)
	if err != nil {
		return nil, fmt.Errorf("listing documents of run %s: %w", runID, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d       Document
			labels  string
			updated int64
		)
		if err := rows.Scan(&d.Path, &d.Status, &labels, &d.Error, &updated); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if d.Labels, err = decodeLabels(labels); err != nil {
			s.logger.Warn("skipping corrupt label counts", "run_id", runID, "path", d.Path, "error", err)
		}
		d.UpdatedAt = time.UnixMilli(updated).UTC()
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		labels   string
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Kind, &r.Input, &r.Output, &r.Status, &r.Documents, &r.Failed,
		&labels, &r.Error, &started, &finished); err != nil {
		return nil, err
	}
	var err error
	if r.Labels, err = decodeLabels(labels); err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return &r, nil
}

func encodeLabels(labels map[string]int) (string, error) {
	if len(labels) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("marshaling label counts: %w", err)
	}
	return string(data), nil
}

func decodeLabels(s string) (map[string]int, error) {
	labels := make(map[string]int)
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, fmt.Errorf("unmarshaling label counts: %w", err)
	}
	return labels, nil
}
