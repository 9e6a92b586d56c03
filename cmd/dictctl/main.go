// Command dictctl builds and maintains dictionary training corpora: it
// generates training artifacts from token documents, converts corrected
// annotated XML back into training labels and inspects annotated files.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/mrihtar/grobid-dictionaries/internal/corpus"
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/pipeline"
	"github.com/mrihtar/grobid-dictionaries/internal/registry"
	"github.com/mrihtar/grobid-dictionaries/internal/tei"
	"github.com/mrihtar/grobid-dictionaries/pkg/config"
	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/postgres"
	pkgredis "github.com/mrihtar/grobid-dictionaries/pkg/redis"
)

const version = "0.4.0"

// Globals are shared by every command.
type Globals struct {
	Config   string `name:"config" short:"c" help:"Path to YAML config file" type:"path"`
	LogLevel string `name:"log-level" help:"Override the configured log level"`
	Registry string `name:"registry" help:"SQLite file recording runs (defaults to postgres when configured)" type:"path"`

	cfg *config.Config
}

// load reads the configuration once and installs the logger.
func (g *Globals) load() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	// stdout carries command output
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	g.cfg = cfg
	return cfg, nil
}

// openRegistry returns the run store, or nil when none is configured.
func (g *Globals) openRegistry(ctx context.Context, cfg *config.Config) (*registry.Store, func() error, error) {
	var (
		db      *sql.DB
		dialect registry.Dialect
	)
	switch {
	case g.Registry != "":
		var err error
		if db, err = registry.OpenSQLite(g.Registry); err != nil {
			return nil, nil, err
		}
		dialect = registry.SQLite
	case cfg.Postgres.Host != "":
		c, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		db, dialect = c.DB, registry.Postgres
	default:
		return nil, func() error { return nil }, nil
	}
	store := registry.New(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

// BatchFlags control batch commands.
type BatchFlags struct {
	Workers         int  `help:"Documents processed concurrently (default from config)"`
	ContinueOnError bool `name:"continue-on-error" help:"Record failed documents and keep going"`
}

func (b BatchFlags) options(cfg *config.Config) corpus.BatchOptions {
	opts := corpus.BatchOptions{Workers: cfg.Corpus.Workers, ContinueOnError: cfg.Corpus.ContinueOnError || b.ContinueOnError}
	if b.Workers > 0 {
		opts.Workers = b.Workers
	}
	return opts
}

// runBatch records a batch in the registry around fn.
func (g *Globals) runBatch(ctx context.Context, cfg *config.Config, kind, input, output string, opts corpus.BatchOptions,
	fn func(corpus.BatchOptions) (*corpus.BatchResult, error)) error {
	store, closeStore, err := g.openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var runID string
	if store != nil {
		if runID, err = store.StartRun(ctx, kind, input, output); err != nil {
			return err
		}
		opts.Observer = store.Observer(runID)
	}

	start := time.Now()
	res, runErr := fn(opts)
	if store != nil {
		documents, failed, labels := 0, 0, map[string]int(nil)
		if res != nil {
			documents, failed, labels = res.Documents, len(res.Failed), res.Labels
		}
		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.FinishRun(finishCtx, runID, documents, failed, labels, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printResult(res, time.Since(start), runID)
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d documents failed", len(res.Failed))
	}
	return nil
}

func printResult(res *corpus.BatchResult, took time.Duration, runID string) {
	fmt.Printf("%d documents processed in %s\n", res.Documents, took.Round(time.Millisecond))
	if runID != "" {
		fmt.Printf("run: %s\n", runID)
	}
	names := make([]string, 0, len(res.Labels))
	for name := range res.Labels {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%d\n", name, res.Labels[name])
	}
	tw.Flush()
	for _, f := range res.Failed {
		fmt.Printf("FAILED %s: %v\n", f.Path, f.Err)
	}
}

// TrainCmd generates training artifacts.
type TrainCmd struct {
	Input     string `arg:"" help:"Token document or directory of them" type:"path"`
	Output    string `arg:"" help:"Output directory" type:"path"`
	Annotated bool   `help:"Pre-label entries with the lexical entry model"`
	BatchFlags
}

func (c *TrainCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	p, err := pipeline.Build(ctx, cfg, pipeline.Options{Training: true})
	if err != nil {
		return err
	}
	defer p.Close()
	gen, err := corpus.NewGenerator(p.Structurer, c.Annotated)
	if err != nil {
		return err
	}
	kind := "train"
	if c.Annotated {
		kind = "train-annotated"
	}
	return g.runBatch(ctx, cfg, kind, c.Input, c.Output, c.options(cfg), func(opts corpus.BatchOptions) (*corpus.BatchResult, error) {
		return corpus.Train(ctx, gen, c.Input, c.Output, cfg.Corpus.TemplateDir, opts)
	})
}

// ReverseCmd converts annotated XML into training labels.
type ReverseCmd struct {
	Input    string `arg:"" help:"Annotated document or directory of them" type:"path"`
	Output   string `arg:"" help:"Output directory" type:"path"`
	Stage    string `help:"Read labels for one stage (dictionary-body-segmentation, lexical-entry, form, sense)"`
	Compress bool   `help:"Write xz compressed training files"`
	BatchFlags
}

func (c *ReverseCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	rv := corpus.NewReverser()
	if c.Stage != "" {
		st, err := label.ParseStage(c.Stage)
		if err != nil {
			return err
		}
		rv = corpus.NewStageReverser(st)
	}
	compress := c.Compress || cfg.Corpus.Compress
	return g.runBatch(ctx, cfg, "reverse", c.Input, c.Output, c.options(cfg), func(opts corpus.BatchOptions) (*corpus.BatchResult, error) {
		return corpus.ReverseBatch(ctx, rv, c.Input, c.Output, compress, opts)
	})
}

// CheckCmd inspects annotated documents.
type CheckCmd struct {
	Paths []string `arg:"" help:"Annotated documents" type:"existingfile"`
}

func (c *CheckCmd) Run() error {
	bad := 0
	for _, path := range c.Paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		report, err := tei.Inspect(f)
		f.Close()
		if err != nil {
			fmt.Printf("%s: %v\n", path, err)
			bad++
			continue
		}
		fmt.Printf("%s: %d entries, %d line breaks, %d page breaks\n", path, report.Entries, report.LineBreaks, report.PageBreaks)
		if !report.Valid() {
			fmt.Printf("  unknown elements: %s\n", strings.Join(report.Unknown, ", "))
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d documents failed the check", bad, len(c.Paths))
	}
	return nil
}

// RunsCmd lists recorded runs.
type RunsCmd struct {
	Limit int    `default:"20" help:"Number of runs to show"`
	ID    string `arg:"" optional:"" help:"Show the documents of one run"`
}

func (c *RunsCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	store, closeStore, err := g.openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if store == nil {
		return fmt.Errorf("no run registry configured (use --registry or postgres settings)")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if c.ID != "" {
		docs, err := store.Documents(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "PATH\tSTATUS\tERROR")
		for _, d := range docs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Path, d.Status, d.Error)
		}
		return nil
	}
	runs, err := store.ListRuns(ctx, c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tDOCUMENTS\tFAILED\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Kind, r.Status, r.Documents, r.Failed, r.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// CachePurgeCmd removes cached classifier output.
type CachePurgeCmd struct {
	Model string `help:"Only purge one stage model"`
}

func (c *CachePurgeCmd) Run(g *Globals, ctx context.Context) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("no redis address configured")
	}
	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer client.Close()
	pattern := "labels:*"
	if c.Model != "" {
		pattern = "labels:" + c.Model + ":*"
	}
	n, err := client.FlushByPattern(ctx, pattern)
	if err != nil {
		return err
	}
	fmt.Printf("%d cached labellings removed\n", n)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("dictctl %s\n", version)
	return nil
}

// CLI defines the command-line interface.
var CLI struct {
	Globals

	Train   TrainCmd   `cmd:"" help:"Generate training artifacts from token documents"`
	Reverse ReverseCmd `cmd:"" help:"Convert annotated XML into training labels"`
	Check   CheckCmd   `cmd:"" help:"Inspect annotated documents"`
	Runs    RunsCmd    `cmd:"" help:"List recorded runs"`
	Cache   struct {
		Purge CachePurgeCmd `cmd:"" help:"Remove cached classifier output"`
	} `cmd:"" help:"Label cache maintenance"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&CLI,
		kong.Name("dictctl"),
		kong.Description("Dictionary training corpus tools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Bind(&CLI.Globals),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}
