package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := New(db, SQLite)
	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.StartRun(ctx, "train", "in", "out")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	obs := s.Observer(id)
	obs.DocumentDone(ctx, "in/a.json", "ok", map[string]int{"<entry>": 3}, nil)
	obs.DocumentDone(ctx, "in/b.json", "failed", nil, errors.New("broken"))
	obs.DocumentDone(ctx, "in/b.json", "ok", nil, nil)

	if err := s.FinishRun(ctx, id, 2, 0, map[string]int{"<entry>": 3}, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunFinished || run.Documents != 2 || run.Labels["<entry>"] != 3 {
		t.Errorf("run = %+v", run)
	}
	if !run.FinishedAt.After(run.StartedAt) {
		t.Errorf("finished %v not after started %v", run.FinishedAt, run.StartedAt)
	}

	docs, err := s.Documents(ctx, id)
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[0].Path != "in/a.json" || docs[0].Labels["<entry>"] != 3 {
		t.Errorf("first document = %+v", docs[0])
	}
	if docs[1].Status != "ok" || docs[1].Error != "" {
		t.Errorf("second document not replaced: %+v", docs[1])
	}
}

func TestFailedRun(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	id, err := s.StartRun(ctx, "reverse", "in", "out")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, id, 0, 1, nil, errors.New("in/a.tei.xml: corpus format error")); err != nil {
		t.Fatal(err)
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunFailed || run.Error == "" {
		t.Errorf("run = %+v", run)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.StartRun(ctx, "train", "in", "out")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs = %+v", runs)
	}
	if runs[0].Status != RunRunning || !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run = %+v", runs[0])
	}
}

func TestGetRunUnknown(t *testing.T) {
	_, err := newStore(t).GetRun(context.Background(), "nope")
	if !errors.Is(err, apperrors.ErrInputUnavailable) {
		t.Errorf("err = %v, want InputUnavailable", err)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{dialect: Postgres}
	got := s.rebind(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	if want := `UPDATE t SET a = $1, b = $2 WHERE id = $3`; got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	s.dialect = SQLite
	if got := s.rebind(`a = ?`); got != `a = ?` {
		t.Errorf("sqlite rebind = %q", got)
	}
}
