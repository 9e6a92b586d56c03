package layout

import (
	"unicode"
	"unicode/utf8"
)

// Tokenize splits plain text the way the layout extractor does: words,
// single punctuation characters, space runs and line breaks each become one
// token. Every token receives the given font. Concatenating the texts
// reproduces the input.
func Tokenize(text string, font FontDescriptor) []Token {
	tokens := make([]Token, 0, len(text)/3)
	emit := func(s string) {
		tokens = append(tokens, Token{Text: s, Font: font, Index: len(tokens)})
	}
	start := -1
	flushWord := func(end int) {
		if start >= 0 {
			emit(text[start:end])
			start = -1
		}
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '\n':
			flushWord(i)
			if n := len(tokens); n > 0 {
				tokens[n-1].NewLineAfter = true
			}
			emit("\n")
		case r == ' ' || r == '\t':
			flushWord(i)
			j := i + size
			for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
				j++
			}
			emit(text[i:j])
			i = j
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'':
			if start < 0 {
				start = i
			}
		default:
			flushWord(i)
			emit(text[i : i+size])
		}
		i += size
	}
	flushWord(len(text))
	return tokens
}
