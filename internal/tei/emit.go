// Package tei serialises structured dictionary entries as TEI-like XML and
// inspects the annotated documents written for training.
package tei

import (
	"html"
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

const escapedLineBreak = "&lt;lb/&gt;"

// Escape HTML-escapes content and turns escaped line break markers back
// into literal <lb/> elements.
func Escape(content string) string {
	return strings.ReplaceAll(html.EscapeString(content), escapedLineBreak, "<lb/>")
}

// Emit wraps escaped content in the element l maps to. A label without an
// element is an InvalidLabel error and nothing is emitted.
func Emit(content string, l label.Label) (string, error) {
	el, ok := l.Element()
	if !ok {
		return "", apperrors.InvalidLabel("label %s has no output element", l)
	}
	return "<" + el + ">" + Escape(content) + "</" + el + ">", nil
}

// EmitTag resolves a classifier tag such as "<sense>" against stage s and
// emits content under it.
func EmitTag(content, tag string, s label.Stage) (string, error) {
	l, _, err := label.Parse(s, tag)
	if err != nil {
		return "", err
	}
	return Emit(content, l)
}
