package tei

import (
	"fmt"
	"io"
	"sort"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

var (
	entryCount     = xpath.MustCompile("count(//body//entry)")
	lineBreakCount = xpath.MustCompile("count(//body//lb)")
	pageBreakCount = xpath.MustCompile("count(//body//pb)")
)

// structural elements allowed anywhere inside an entry
var structural = map[string]bool{"lb": true, "pb": true, "space": true}

// Report summarises an annotated document.
type Report struct {
	Entries    int
	LineBreaks int
	PageBreaks int
	// Elements counts every element found below an entry, by name.
	Elements map[string]int
	// Unknown lists element names below an entry that no label of the
	// enclosing stage maps to.
	Unknown []string
}

// Valid reports whether every element was recognised.
func (r *Report) Valid() bool {
	return len(r.Unknown) == 0
}

// Inspect parses an annotated document and checks the elements directly
// under each entry against the lexical entry taxonomy, and the children of
// form and sense against their own stages. Malformed XML is a CorpusFormat
// error.
func Inspect(r io.Reader) (*Report, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, apperrors.CorpusFormat("parsing annotated document: %v", err)
	}
	body := xmlquery.FindOne(doc, "//body")
	if body == nil {
		return nil, apperrors.CorpusFormat("annotated document has no body")
	}

	nav := xmlquery.CreateXPathNavigator(doc)
	rep := &Report{
		Entries:    evalInt(entryCount, nav),
		LineBreaks: evalInt(lineBreakCount, nav),
		PageBreaks: evalInt(pageBreakCount, nav),
		Elements:   make(map[string]int),
	}

	unknown := make(map[string]bool)
	for _, entry := range xmlquery.Find(doc, "//body//entry") {
		inspectChildren(entry, label.LexicalEntry, rep, unknown)
	}
	for name := range unknown {
		rep.Unknown = append(rep.Unknown, name)
	}
	sort.Strings(rep.Unknown)
	return rep, nil
}

func inspectChildren(n *xmlquery.Node, stage label.Stage, rep *Report, unknown map[string]bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode || structural[c.Data] {
			continue
		}
		rep.Elements[c.Data]++
		l, err := label.FromElement(stage, c.Data)
		if err != nil {
			unknown[fmt.Sprintf("%s/%s", stage, c.Data)] = true
			continue
		}
		if next, ok := l.Next(); ok {
			inspectChildren(c, next, rep, unknown)
		}
	}
}

func evalInt(expr *xpath.Expr, nav *xmlquery.NodeNavigator) int {
	nav.MoveToRoot()
	if v, ok := expr.Evaluate(nav).(float64); ok {
		return int(v)
	}
	return 0
}
