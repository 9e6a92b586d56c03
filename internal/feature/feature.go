// Package feature derives the per-token rows sent to a stage classifier.
// The numeric encoding the classifier works on internally is not produced
// here; a row carries the token text followed by symbolic features, one
// row per surviving token.
package feature

import (
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/layout"
)

// Line status values.
const (
	LineStart = "LINE_START"
	LineIn    = "LINE_IN"
	LineEnd   = "LINE_END"
)

// Font status values.
const (
	NewFont  = "NEWFONT"
	SameFont = "SAMEFONT"
)

// Row is one feature record. TokenIndex is the position, within the
// annotated span, of the token the row describes.
type Row struct {
	TokenIndex int
	Text       string
	Line       string
	Font       string
	Extra      []string
}

func (r Row) String() string {
	fields := make([]string, 0, 3+len(r.Extra))
	fields = append(fields, r.Text, r.Line, r.Font)
	fields = append(fields, r.Extra...)
	return strings.Join(fields, " ")
}

// Matrix is the feature input of one classifier call.
type Matrix struct {
	Rows []Row
}

// Indexes returns the token index of every row, in row order.
func (m Matrix) Indexes() []int {
	out := make([]int, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = r.TokenIndex
	}
	return out
}

// Blank reports whether the matrix has no rows.
func (m Matrix) Blank() bool {
	return len(m.Rows) == 0
}

// String joins the rows with newlines, each row terminated by one.
func (m Matrix) String() string {
	var sb strings.Builder
	for _, r := range m.Rows {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Annotator turns the tokens of one span into a feature matrix.
type Annotator interface {
	Annotate(tokens []layout.Token) Matrix
}

// BoundaryFunc classifies a token that is neither first nor last in its
// span from its neighbourhood.
type BoundaryFunc func(text string, prevNewLine bool, prevText string, nextNewLine bool, nextText string, afterNextNewLine bool) string

// DefaultBoundary puts a token at the start of a line when the token before
// it closed a line and at the end when the next token is a line break.
func DefaultBoundary(text string, prevNewLine bool, prevText string, nextNewLine bool, nextText string, afterNextNewLine bool) string {
	switch {
	case prevNewLine || isLineBreak(prevText):
		return LineStart
	case isLineBreak(nextText):
		return LineEnd
	default:
		return LineIn
	}
}

// FilterLine reports whether the text is layout boilerplate (image and page
// references left by the extractor) that never reaches a classifier.
func FilterLine(text string) bool {
	if text == "" {
		return true
	}
	if strings.Contains(text, "@IMAGE") || strings.Contains(text, "@PAGE") {
		return true
	}
	for _, ext := range []string{".pbm", ".vec", ".jpg", ".png"} {
		if strings.Contains(text, ext) {
			return true
		}
	}
	return false
}

func isLineBreak(s string) bool {
	return s == "\n" || s == "\r" || s == "\n\r" || s == "\r\n"
}

// fontTracker carries the font of the previous surviving token.
type fontTracker struct {
	current *layout.FontDescriptor
}

func (f *fontTracker) next(font layout.FontDescriptor) string {
	if f.current != nil && f.current.Equal(font) {
		return SameFont
	}
	f.current = &font
	return NewFont
}
