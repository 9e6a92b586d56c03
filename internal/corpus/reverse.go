// Package corpus builds classifier training corpora. The forward direction
// runs documents through the pipeline and writes feature, raw text and
// annotated XML artifacts; the reverse direction reads hand-corrected
// annotated XML back into per-token training labels.
package corpus

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

// PageMarker is the training line emitted for a page break.
const PageMarker = "@newpage"

// Record is one training line: a token with its label, or a page break.
// Begin marks the first token of every line of a run; RunStart only the
// first token of the run itself.
type Record struct {
	Token     string
	Tag       string
	Begin     bool
	RunStart  bool
	PageBreak bool
}

func (r Record) String() string {
	switch {
	case r.PageBreak:
		return PageMarker
	case r.Begin:
		return r.Token + " " + label.BeginPrefix + r.Tag
	default:
		return r.Token + " " + r.Tag
	}
}

// Raw returns the raw classifier label of the record.
func (r Record) Raw() string {
	if r.Begin {
		return label.BeginPrefix + r.Tag
	}
	return r.Tag
}

// Example is the training data read from one annotated document.
type Example struct {
	Name    string
	Records []Record
}

// Tokens returns the token records, page breaks left out.
func (e *Example) Tokens() []Record {
	out := make([]Record, 0, len(e.Records))
	for _, r := range e.Records {
		if !r.PageBreak {
			out = append(out, r)
		}
	}
	return out
}

// Labels counts the labelled runs of the example by tag.
func (e *Example) Labels() map[string]int {
	counts := make(map[string]int)
	for _, r := range e.Records {
		if r.RunStart {
			counts[r.Tag]++
		}
	}
	return counts
}

// WriteTo writes one record per line followed by a blank separator line.
func (e *Example) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for _, r := range e.Records {
		sb.WriteString(r.String())
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Reverser converts annotated XML into training examples.
//
// By default every token inside an entry is labelled with the innermost
// element enclosing it. A staged reverser targets one cascade stage
// instead: it only reads inside that stage's scope element (entry for the
// body and lexical entry stages, form and sense for theirs), labels text
// with the scope's child element it sits in (the entry itself for body
// segmentation) and rejects elements outside the stage taxonomy.
type Reverser struct {
	stage  label.Stage
	staged bool
}

// NewReverser returns a reverser using innermost-element labels.
func NewReverser() *Reverser {
	return &Reverser{}
}

// NewStageReverser returns a reverser for stage st.
func NewStageReverser(st label.Stage) *Reverser {
	return &Reverser{stage: st, staged: true}
}

func (rv *Reverser) scope() string {
	if !rv.staged {
		return "entry"
	}
	switch rv.stage {
	case label.Form:
		return "form"
	case label.Sense:
		return "sense"
	default:
		return "entry"
	}
}

type pieceKind int

const (
	pieceText pieceKind = iota
	pieceLine
	piecePage
)

type piece struct {
	kind pieceKind
	text string
}

type frame struct {
	name    string
	ordinal int
}

// walk is the explicit state of the pushdown walk over one document.
type walk struct {
	rv      *Reverser
	name    string
	scope   string
	stack   []frame
	pending []piece
	opened  int
	// run state across flushes
	lineStart bool
	lastRun   int
	out       []Record
}

// Reverse reads one annotated document. Malformed or unbalanced XML is a
// CorpusFormat error; with a staged reverser an element outside the
// stage taxonomy is an InvalidLabel error.
func (rv *Reverser) Reverse(r io.Reader, name string) (*Example, error) {
	w := &walk{rv: rv, name: name, scope: rv.scope(), lineStart: true, lastRun: -1}
	dec := xml.NewDecoder(r)
	dec.Strict = true

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.CorpusFormat("%s: %v", name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := w.start(t.Name.Local); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if err := w.end(t.Name.Local); err != nil {
				return nil, err
			}
		case xml.CharData:
			w.pending = append(w.pending, piece{kind: pieceText, text: string(t)})
		}
	}
	if len(w.stack) > 0 {
		return nil, apperrors.CorpusFormat("%s: element <%s> is not closed", name, w.stack[len(w.stack)-1].name)
	}
	return &Example{Name: name, Records: w.out}, nil
}

func (w *walk) start(name string) error {
	switch name {
	case "lb":
		w.pending = append(w.pending, piece{kind: pieceLine})
		return nil
	case "pb":
		w.pending = append(w.pending, piece{kind: piecePage})
		return nil
	case "space":
		w.pending = append(w.pending, piece{kind: pieceText, text: " "})
		return nil
	}
	// text seen so far belongs to the element that is still open
	if err := w.flush(); err != nil {
		return err
	}
	w.opened++
	w.stack = append(w.stack, frame{name: name, ordinal: w.opened})
	if name == w.scope {
		w.lineStart = true
		w.lastRun = -1
	}
	return nil
}

func (w *walk) end(name string) error {
	switch name {
	case "lb", "pb", "space":
		return nil
	}
	if len(w.stack) == 0 || w.stack[len(w.stack)-1].name != name {
		return apperrors.CorpusFormat("%s: unbalanced </%s>", w.name, name)
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.stack = w.stack[:len(w.stack)-1]
	return nil
}

// labelling returns the element labelling pending text and the ordinal of
// the run it belongs to; ok is false outside the scope element.
func (w *walk) labelling() (elem string, run int, ok bool) {
	scopeIdx := -1
	for i := len(w.stack) - 1; i >= 0; i-- {
		if w.stack[i].name == w.scope {
			scopeIdx = i
			break
		}
	}
	if scopeIdx < 0 {
		return "", 0, false
	}
	top := w.stack[len(w.stack)-1]
	switch {
	case !w.rv.staged:
		return top.name, top.ordinal, true
	case w.rv.stage == label.BodySegmentation, scopeIdx == len(w.stack)-1:
		s := w.stack[scopeIdx]
		return s.name, s.ordinal, true
	default:
		c := w.stack[scopeIdx+1]
		return c.name, c.ordinal, true
	}
}

func (w *walk) tag(elem string) (string, error) {
	if !w.rv.staged {
		return "<" + elem + ">", nil
	}
	l, err := label.FromElement(w.rv.stage, elem)
	if err != nil {
		return "", fmt.Errorf("%s: %w", w.name, err)
	}
	return l.Tag(), nil
}

// flush turns the pending pieces into records.
func (w *walk) flush() error {
	pending := w.pending
	w.pending = nil
	elem, run, inScope := w.labelling()

	// an unstaged walk starts a new run at every flush; a staged one
	// continues the run while text stays inside the same scope child
	begin := !w.rv.staged || run != w.lastRun
	tag := ""
	for _, p := range pending {
		switch p.kind {
		case piecePage:
			// page breaks outside the scope element have no tokens to sit between
			if inScope {
				w.out = append(w.out, Record{PageBreak: true})
			}
		case pieceLine:
			w.lineStart = true
		case pieceText:
			if !inScope {
				continue
			}
			for _, tok := range strings.Fields(p.text) {
				if tag == "" {
					t, err := w.tag(elem)
					if err != nil {
						return err
					}
					tag = t
				}
				w.out = append(w.out, Record{Token: tok, Tag: tag, Begin: begin || w.lineStart, RunStart: begin})
				begin = false
				w.lineStart = false
				w.lastRun = run
			}
		}
	}
	return nil
}
