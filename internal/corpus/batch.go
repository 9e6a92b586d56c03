package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
)

// Document statuses reported to observers and metrics.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ProcessFunc handles one input file and returns its label counts.
type ProcessFunc func(ctx context.Context, path string) (map[string]int, error)

// Observer is told about every document of a batch.
type Observer interface {
	DocumentDone(ctx context.Context, path, status string, labels map[string]int, err error)
}

// BatchOptions control a batch run.
type BatchOptions struct {
	// Workers bounds the documents processed concurrently. Values below 2
	// process documents one after the other.
	Workers int
	// ContinueOnError records a failed document and goes on with the
	// others. Without it the first failure aborts the batch.
	ContinueOnError bool
	// Match filters directory entries by base name; nil accepts every
	// regular file.
	Match    func(name string) bool
	Observer Observer
	Metrics  *metrics.Metrics
}

// DocumentError is the failure of one document.
type DocumentError struct {
	Path string
	Err  error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e DocumentError) Unwrap() error {
	return e.Err
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Documents int
	Labels    map[string]int
	Failed    []DocumentError
}

// CheckDirectory returns an InputUnavailable error unless dir is an
// existing directory.
func CheckDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return apperrors.InputUnavailable("cannot access %s: %v", dir, err)
	}
	if !info.IsDir() {
		return apperrors.InputUnavailable("%s is not a directory", dir)
	}
	return nil
}

// ListInputs returns input itself when it is a file, or the matching
// regular files of the directory in name order.
func ListInputs(input string, match func(string) bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, apperrors.InputUnavailable("cannot access %s: %v", input, err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, apperrors.InputUnavailable("cannot read %s: %v", input, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if match != nil && !match(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(input, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// RunBatch applies process to input (a file or a directory) after checking
// that both input and output are reachable. Nothing is processed when
// either check fails.
func RunBatch(ctx context.Context, input, output string, opts BatchOptions, process ProcessFunc) (*BatchResult, error) {
	if err := CheckDirectory(output); err != nil {
		return nil, err
	}
	paths, err := ListInputs(input, opts.Match)
	if err != nil {
		return nil, err
	}

	b := &batch{
		opts:    opts,
		process: process,
		result:  &BatchResult{Labels: make(map[string]int)},
		logger:  slog.Default().With("component", "batch"),
	}
	b.logger.Info("batch started", "input", input, "output", output, "documents", len(paths), "workers", opts.Workers)

	if opts.Workers < 2 {
		for _, p := range paths {
			if err := b.one(ctx, p); err != nil {
				return b.result, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, p := range paths {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				return b.one(gctx, p)
			})
		}
		if err := g.Wait(); err != nil {
			return b.result, err
		}
	}

	b.logger.Info("batch finished", "documents", b.result.Documents, "failed", len(b.result.Failed))
	return b.result, nil
}

type batch struct {
	opts    BatchOptions
	process ProcessFunc
	mu      sync.Mutex
	result  *BatchResult
	logger  *slog.Logger
}

// one processes a single document. It returns an error only when the
// batch must stop.
func (b *batch) one(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	labels, err := b.process(ctx, path)
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	b.opts.Metrics.ObserveDocument(status)
	if b.opts.Observer != nil {
		b.opts.Observer.DocumentDone(ctx, path, status, labels, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		derr := DocumentError{Path: path, Err: err}
		if !b.opts.ContinueOnError {
			return derr
		}
		b.logger.Warn("document failed", "path", path, "error", err)
		b.result.Failed = append(b.result.Failed, derr)
		return nil
	}
	b.result.Documents++
	for k, v := range labels {
		b.result.Labels[k] += v
	}
	return nil
}
