package feature

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mrihtar/grobid-dictionaries/internal/layout"
)

// Capitalisation and punctuation values of TokenAnnotator rows.
const (
	AllCaps    = "ALLCAPS"
	InitCap    = "INITCAP"
	NoCaps     = "NOCAPS"
	Punct      = "PUNCT"
	NoPunct    = "NOPUNCT"
	StyleBold  = "BOLD"
	StyleItal  = "ITALIC"
	StylePlain = "PLAIN"
)

// TokenAnnotator builds rows for the body, lexical entry and sense stages.
// Every non-blank token gets a row with line, font, capitalisation,
// punctuation and style features; whitespace and line breaks are skipped.
type TokenAnnotator struct {
	Boundary BoundaryFunc
}

func NewTokenAnnotator(boundary BoundaryFunc) *TokenAnnotator {
	if boundary == nil {
		boundary = DefaultBoundary
	}
	return &TokenAnnotator{Boundary: boundary}
}

func (a *TokenAnnotator) Annotate(tokens []layout.Token) Matrix {
	boundary := a.Boundary
	if boundary == nil {
		boundary = DefaultBoundary
	}
	var (
		m     Matrix
		fonts fontTracker
		first = true
	)
	for i, tok := range tokens {
		text := strings.TrimSpace(tok.Text)
		if text == "" || isLineBreak(tok.Text) || FilterLine(text) {
			continue
		}

		line := LineIn
		if first {
			line = LineStart
		} else if i+1 < len(tokens) {
			prev, next := tokens[i-1], tokens[i+1]
			afterNext := i+2 < len(tokens) && tokens[i+2].NewLineAfter
			line = boundary(text, prev.NewLineAfter, prev.Text, next.NewLineAfter, next.Text, afterNext)
		} else {
			line = LineEnd
		}
		first = false

		m.Rows = append(m.Rows, Row{
			TokenIndex: i,
			Text:       text,
			Line:       line,
			Font:       fonts.next(tok.Font),
			Extra:      []string{capitalisation(text), punctuation(text), style(tok.Font)},
		})
	}
	return m
}

func capitalisation(text string) string {
	r, _ := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(r) {
		return NoCaps
	}
	if strings.ToUpper(text) == text && strings.ToLower(text) != text && utf8.RuneCountInString(text) > 1 {
		return AllCaps
	}
	return InitCap
}

func punctuation(text string) string {
	for _, r := range text {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return NoPunct
		}
	}
	return Punct
}

func style(f layout.FontDescriptor) string {
	switch {
	case f.Bold:
		return StyleBold
	case f.Italic:
		return StyleItal
	default:
		return StylePlain
	}
}
