package feature

import (
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/layout"
)

// FormAnnotator builds the rows of the form stage. Blank, filtered and
// newline tokens produce no row but still advance the running index, so
// they decide which surviving token counts as first or last.
type FormAnnotator struct {
	Boundary BoundaryFunc
}

// NewFormAnnotator returns an annotator using boundary, or DefaultBoundary
// when boundary is nil.
func NewFormAnnotator(boundary BoundaryFunc) *FormAnnotator {
	if boundary == nil {
		boundary = DefaultBoundary
	}
	return &FormAnnotator{Boundary: boundary}
}

func (a *FormAnnotator) Annotate(tokens []layout.Token) Matrix {
	boundary := a.Boundary
	if boundary == nil {
		boundary = DefaultBoundary
	}
	var (
		m     Matrix
		fonts fontTracker
		n     = len(tokens)
	)
	for i, tok := range tokens {
		text := strings.ReplaceAll(tok.Text, " ", "")
		if FilterLine(text) || strings.TrimSpace(text) == "" || isLineBreak(text) {
			continue
		}

		var line string
		switch {
		case i == 0:
			line = LineStart
		case i+1 == n:
			line = LineEnd
		default:
			prev, next := tokens[i-1], tokens[i+1]
			afterNext := i+2 < n && tokens[i+2].NewLineAfter
			line = boundary(text, prev.NewLineAfter, prev.Text, next.NewLineAfter, next.Text, afterNext)
		}

		m.Rows = append(m.Rows, Row{
			TokenIndex: i,
			Text:       text,
			Line:       line,
			Font:       fonts.next(tok.Font),
		})
	}
	return m
}
