// Package pipeline assembles a structurer from configuration: one remote
// classifier per configured stage, guarded by a timeout and circuit
// breaker and optionally fronted by the label cache.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/mrihtar/grobid-dictionaries/internal/classifier"
	"github.com/mrihtar/grobid-dictionaries/internal/feature"
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/structurer"
	"github.com/mrihtar/grobid-dictionaries/pkg/config"
	"github.com/mrihtar/grobid-dictionaries/pkg/health"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
	"github.com/mrihtar/grobid-dictionaries/pkg/resilience"
)

// Options tune Build.
type Options struct {
	// Training renders leaf text with line break markers.
	Training bool
	// Cache, when set, memoises classifier output.
	Cache   classifier.Store
	Metrics *metrics.Metrics
}

// Pipeline owns the classifier connections behind a structurer.
type Pipeline struct {
	Structurer *structurer.Structurer
	remotes    []*classifier.Remote
	guards     map[label.Stage]*classifier.Guarded
}

// Addr returns the configured model host address of stage st.
func Addr(cfg config.ClassifierConfig, st label.Stage) string {
	switch st {
	case label.BodySegmentation:
		return cfg.BodySegmentationAddr
	case label.LexicalEntry:
		return cfg.LexicalEntryAddr
	case label.Form:
		return cfg.FormAddr
	case label.Sense:
		return cfg.SenseAddr
	}
	return ""
}

// Annotator returns the feature annotator stage st is trained with.
func Annotator(st label.Stage) feature.Annotator {
	if st == label.Form {
		return feature.NewFormAnnotator(nil)
	}
	return feature.NewTokenAnnotator(nil)
}

// Build dials a model host for every stage with an address. Stages without
// one are left out of the structurer.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	mode, err := structurer.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{guards: make(map[label.Stage]*classifier.Guarded)}
	var stages []structurer.Stage
	for _, st := range label.Stages {
		addr := Addr(cfg.Classifier, st)
		if addr == "" {
			continue
		}
		remote, err := classifier.Dial(ctx, addr, st.String())
		if err != nil {
			p.Close()
			return nil, err
		}
		p.remotes = append(p.remotes, remote)
		stages = append(stages, p.stage(st, remote, cfg, opts))
		slog.Info("classifier connected", "stage", st.String(), "addr", addr)
	}
	return p.assemble(mode, opts, stages)
}

// FromClassifiers builds a pipeline on already constructed classifiers,
// applying the same guards and cache as Build.
func FromClassifiers(cfg *config.Config, opts Options, models map[label.Stage]classifier.Classifier) (*Pipeline, error) {
	mode, err := structurer.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{guards: make(map[label.Stage]*classifier.Guarded)}
	var stages []structurer.Stage
	for _, st := range label.Stages {
		if c, ok := models[st]; ok {
			stages = append(stages, p.stage(st, c, cfg, opts))
		}
	}
	return p.assemble(mode, opts, stages)
}

func (p *Pipeline) stage(st label.Stage, c classifier.Classifier, cfg *config.Config, opts Options) structurer.Stage {
	guarded := classifier.NewGuarded(c, st.String(), cfg.Classifier, opts.Metrics)
	p.guards[st] = guarded
	var top classifier.Classifier = guarded
	if opts.Cache != nil {
		top = classifier.NewCache(guarded, opts.Cache, st.String(), cfg.Redis.CacheTTL, opts.Metrics)
	}
	return structurer.Stage{Stage: st, Annotator: Annotator(st), Classifier: top}
}

func (p *Pipeline) assemble(mode structurer.Mode, opts Options, stages []structurer.Stage) (*Pipeline, error) {
	s, err := structurer.New(structurer.Options{Mode: mode, Training: opts.Training, Metrics: opts.Metrics}, stages...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("assembling structurer: %w", err)
	}
	p.Structurer = s
	return p, nil
}

// RegisterHealth adds one readiness check per stage reporting its circuit
// breaker: open is down, half-open is degraded.
func (p *Pipeline) RegisterHealth(c *health.Checker) {
	for st, g := range p.guards {
		c.Register("classifier_"+st.String(), func(context.Context) health.ComponentHealth {
			switch g.State() {
			case resilience.StateOpen:
				return health.ComponentHealth{Status: health.StatusDown, Message: "circuit open"}
			case resilience.StateHalfOpen:
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit half-open"}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
}

// Close releases every classifier connection.
func (p *Pipeline) Close() error {
	var err error
	for _, r := range p.remotes {
		err = multierr.Append(err, r.Close())
	}
	p.remotes = nil
	return err
}
