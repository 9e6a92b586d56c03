// Package cluster groups a labelled token stream into maximal contiguous
// spans and aligns classifier output back onto the token sequence.
package cluster

import (
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

// Span is a maximal run of tokens sharing one tag. Tag is the raw tag
// without the begin marker; it is empty only for a stream the classifier
// abstained on entirely.
type Span struct {
	Tokens []layout.Token
	Tag    string
}

// Unlabeled reports whether the span carries no tag.
func (s Span) Unlabeled() bool {
	return s.Tag == ""
}

// Resolve maps the span tag onto the taxonomy of stage st.
func (s Span) Resolve(st label.Stage) (label.Label, error) {
	l, _, err := label.Parse(st, s.Tag)
	return l, err
}

// Cluster partitions the stream into spans. A new span starts when the tag
// differs from the previous token's tag or when the raw label carries the
// begin marker. Tokens with an empty raw label are absorbed into the span
// before them, or the first span when they lead the stream, so concatenating
// the span tokens always reproduces the input. If no token is labelled the
// whole stream is returned as a single unlabelled span.
func Cluster(stream []layout.LabeledToken) []Span {
	if len(stream) == 0 {
		return nil
	}
	var spans []Span
	var pending []layout.Token
	prev := ""
	for _, lt := range stream {
		tag, begin := label.SplitRaw(lt.Raw)
		if tag == "" {
			if len(spans) == 0 {
				pending = append(pending, lt.Token)
			} else {
				last := &spans[len(spans)-1]
				last.Tokens = append(last.Tokens, lt.Token)
			}
			continue
		}
		if len(spans) == 0 || begin || tag != prev {
			tokens := make([]layout.Token, 0, len(pending)+1)
			tokens = append(tokens, pending...)
			pending = nil
			spans = append(spans, Span{Tokens: append(tokens, lt.Token), Tag: tag})
		} else {
			last := &spans[len(spans)-1]
			last.Tokens = append(last.Tokens, lt.Token)
		}
		prev = tag
	}
	if len(pending) > 0 {
		spans = append(spans, Span{Tokens: pending})
	}
	return spans
}

// Align attaches classifier labels to the full token sequence. rows holds,
// for every feature row sent to the classifier, the index of the token it
// describes; tokens without a row get an empty raw label, which is the only
// way a token abstains. A label count that differs from the row count is a
// ClassifierFailure; a classifier label without a tag, such as a bare begin
// marker, is an InvalidLabel.
func Align(tokens []layout.Token, rows []int, labels []string) ([]layout.LabeledToken, error) {
	if len(labels) != len(rows) {
		return nil, apperrors.ClassifierFailure("classifier returned %d labels for %d feature rows", len(labels), len(rows))
	}
	out := make([]layout.LabeledToken, len(tokens))
	for i, tok := range tokens {
		out[i] = layout.LabeledToken{Token: tok}
	}
	for r, idx := range rows {
		if idx < 0 || idx >= len(tokens) {
			return nil, apperrors.ClassifierFailure("feature row %d points at token %d of %d", r, idx, len(tokens))
		}
		if tag, _ := label.SplitRaw(labels[r]); tag == "" {
			return nil, apperrors.InvalidLabel("feature row %d: label %q has no tag", r, labels[r])
		}
		out[idx].Raw = labels[r]
	}
	return out, nil
}
