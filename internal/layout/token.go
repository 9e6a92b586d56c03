// Package layout holds the token model shared by every pipeline stage: text
// tokens carrying the font and line metadata produced by the upstream
// layout extractor.
package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FontDescriptor identifies the font a token was rendered with.
type FontDescriptor struct {
	Name   string  `json:"name"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
}

// Equal reports whether two descriptors name the same font.
func (f FontDescriptor) Equal(o FontDescriptor) bool {
	return f == o
}

// Token is one text token of a document. Tokens are values and are never
// reordered; Index is their position in the document sequence.
type Token struct {
	Text         string         `json:"text"`
	Font         FontDescriptor `json:"font"`
	NewLineAfter bool           `json:"newLineAfter"`
	Index        int            `json:"index"`
}

// IsNewline reports whether the token is a pure line-break marker.
func (t Token) IsNewline() bool {
	return t.Text == "\n" || t.Text == "\r" || t.Text == "\n\r" || t.Text == "\r\n"
}

// LabeledToken pairs a token with the raw label the classifier assigned to
// it. Raw is empty when the classifier abstained.
type LabeledToken struct {
	Token Token
	Raw   string
}

// Document is the token stream of one source document.
type Document struct {
	Name   string  `json:"name"`
	Tokens []Token `json:"tokens"`
}

// BaseName returns the document name without directory and extension.
func (d *Document) BaseName() string {
	base := filepath.Base(d.Name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Text concatenates the token texts in order.
func Text(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// NormalizeText collapses every whitespace run, line breaks included, into
// a single space and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LineBreakMarker is the in-band marker for a line break inside emitted
// content.
const LineBreakMarker = "<lb/>"

// TextWithLineBreaks concatenates the token texts, replacing every line
// break with LineBreakMarker. Used when rendering training data.
func TextWithLineBreaks(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		if t.IsNewline() {
			sb.WriteString(LineBreakMarker)
			continue
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// LoadDocument reads a JSON token file written by the layout extractor.
// Token indexes are reassigned to the file order.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token file %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", path, err)
	}
	if doc.Name == "" {
		doc.Name = filepath.Base(path)
	}
	for i := range doc.Tokens {
		doc.Tokens[i].Index = i
	}
	return &doc, nil
}
