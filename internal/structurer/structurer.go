// Package structurer turns token sequences into entity trees by running
// them through the stage cascade: each stage labels its tokens, the labels
// are clustered into spans, and spans carrying a compound label are handed
// to the next stage.
package structurer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrihtar/grobid-dictionaries/internal/classifier"
	"github.com/mrihtar/grobid-dictionaries/internal/cluster"
	"github.com/mrihtar/grobid-dictionaries/internal/feature"
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	"github.com/mrihtar/grobid-dictionaries/internal/tei"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
	"github.com/mrihtar/grobid-dictionaries/pkg/tracing"
)

// Mode selects how deep the cascade goes.
type Mode int

const (
	// ModeSegment stops at lexical entries: entry components are leaves.
	ModeSegment Mode = iota
	// ModeFull also re-labels form and sense spans.
	ModeFull
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "segment"
}

// ParseMode resolves "segment" or "full".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "segment", "":
		return ModeSegment, nil
	case "full":
		return ModeFull, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Stage is the processor of one cascade stage. It is immutable and may be
// shared by concurrent documents.
type Stage struct {
	Stage      label.Stage
	Annotator  feature.Annotator
	Classifier classifier.Classifier
}

// Options configure a Structurer.
type Options struct {
	Mode Mode
	// Training renders leaf text with <lb/> markers instead of normalising
	// whitespace.
	Training bool
	Metrics  *metrics.Metrics
}

// Structurer dispatches spans through the configured stages.
type Structurer struct {
	stages  map[label.Stage]Stage
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a Structurer from explicitly constructed stage processors.
// Each stage may be given at most once.
func New(opts Options, stages ...Stage) (*Structurer, error) {
	s := &Structurer{
		stages:  make(map[label.Stage]Stage, len(stages)),
		opts:    opts,
		logger:  logger.WithComponent("structurer"),
		metrics: opts.Metrics,
	}
	for _, st := range stages {
		if st.Annotator == nil || st.Classifier == nil {
			return nil, fmt.Errorf("stage %s needs an annotator and a classifier", st.Stage)
		}
		if _, dup := s.stages[st.Stage]; dup {
			return nil, fmt.Errorf("stage %s configured twice", st.Stage)
		}
		s.stages[st.Stage] = st
	}
	return s, nil
}

// Mode reports the configured cascade depth.
func (s *Structurer) Mode() Mode {
	return s.opts.Mode
}

// Has reports whether a processor for stage st is configured.
func (s *Structurer) Has(st label.Stage) bool {
	_, ok := s.stages[st]
	return ok
}

// Result is the entity tree of one token sequence plus the number of spans
// produced per label.
type Result struct {
	Nodes  []*tei.Node
	Labels map[string]int
}

// Document serialises the result of stage st as a complete annotated
// document. Results of stages below body segmentation are wrapped in the
// elements that stage's input lives in.
func (r *Result) Document(st label.Stage) (string, error) {
	body, err := tei.Serialize(r.Nodes)
	if err != nil {
		return "", err
	}
	var enclosing []string
	switch st {
	case label.LexicalEntry:
		enclosing = []string{"entry"}
	case label.Form:
		enclosing = []string{"entry", "form"}
	case label.Sense:
		enclosing = []string{"entry", "sense"}
	}
	for i := len(enclosing) - 1; i >= 0; i-- {
		body = "<" + enclosing[i] + ">" + body + "</" + enclosing[i] + ">"
	}
	return tei.Document(body), nil
}

// Structure labels tokens at stage st and dispatches every span. An
// unknown label anywhere in the cascade fails the whole call.
func (s *Structurer) Structure(ctx context.Context, st label.Stage, tokens []layout.Token) (*Result, error) {
	return s.run(ctx, st, tokens, true)
}

// Segment labels tokens at stage st without descending into compound
// spans: every span becomes a leaf carrying its tokens.
func (s *Structurer) Segment(ctx context.Context, st label.Stage, tokens []layout.Token) (*Result, error) {
	return s.run(ctx, st, tokens, false)
}

// Features returns the matrix stage st sends to its classifier for tokens.
func (s *Structurer) Features(st label.Stage, tokens []layout.Token) (feature.Matrix, error) {
	proc, ok := s.stages[st]
	if !ok {
		return feature.Matrix{}, fmt.Errorf("no processor configured for stage %s", st)
	}
	return proc.Annotator.Annotate(tokens), nil
}

func (s *Structurer) run(ctx context.Context, st label.Stage, tokens []layout.Token, deep bool) (*Result, error) {
	ctx, span := tracing.Start(ctx, "structure", logger.RequestID(ctx))
	defer func() {
		span.End()
		if span.Root() {
			span.Log(ctx, s.logger)
		}
	}()
	span.SetAttr("deep", deep)

	res := &Result{Labels: make(map[string]int)}
	nodes, err := s.dispatch(ctx, st, tokens, deep, res.Labels)
	if err != nil {
		return nil, err
	}
	res.Nodes = nodes
	return res, nil
}

func (s *Structurer) dispatch(ctx context.Context, st label.Stage, tokens []layout.Token, deep bool, counts map[string]int) ([]*tei.Node, error) {
	proc, ok := s.stages[st]
	if !ok {
		return nil, fmt.Errorf("no processor configured for stage %s", st)
	}
	ctx, span := tracing.Start(ctx, st.String(), "")
	defer span.End()
	span.SetAttr("tokens", len(tokens))

	m := proc.Annotator.Annotate(tokens)
	if m.Blank() {
		span.SetAttr("skipped", true)
		return nil, nil
	}

	output, err := proc.Classifier.Label(ctx, m.String())
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.ClassifierFailure("stage %s: %v", st, err)
	}
	stream, err := cluster.Align(tokens, m.Indexes(), classifier.ParseOutput(output))
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", st, err)
	}

	spans := cluster.Cluster(stream)
	span.SetAttr("spans", len(spans))
	nodes := make([]*tei.Node, 0, len(spans))
	for _, sp := range spans {
		if sp.Unlabeled() {
			logger.FromContext(ctx).Debug("dropping unlabelled span", "stage", st.String(), "tokens", len(sp.Tokens))
			continue
		}
		l, err := sp.Resolve(st)
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveSpan(st.String(), l.Tag())
		counts[l.String()]++

		var node *tei.Node
		if next, ok := l.Next(); ok && deep && s.recurses(next) {
			children, err := s.dispatch(ctx, next, sp.Tokens, deep, counts)
			if err != nil {
				return nil, err
			}
			node = tei.Branch(l, children)
		} else {
			node = tei.Leaf(l, s.text(sp.Tokens))
		}
		node.Tokens = sp.Tokens
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *Structurer) recurses(next label.Stage) bool {
	if next == label.LexicalEntry {
		return s.Has(next)
	}
	return s.opts.Mode == ModeFull
}

func (s *Structurer) text(tokens []layout.Token) string {
	if s.opts.Training {
		return layout.TextWithLineBreaks(tokens)
	}
	return layout.NormalizeText(layout.Text(tokens))
}
