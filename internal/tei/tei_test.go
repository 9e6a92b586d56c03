package tei

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

func TestEmit(t *testing.T) {
	tests := []struct {
		content string
		label   label.Label
		want    string
	}{
		{"Helloworld", label.EntrySense, "<sense>Helloworld</sense>"},
		{"a < b & c", label.EntryEtym, "<etym>a &lt; b &amp; c</etym>"},
		{"cat<lb/>n.", label.EntryForm, "<form>cat<lb/>n.</form>"},
		{"x", label.BodyDictScrap, "<dictScarp>x</dictScarp>"},
		{"y", label.EntryOther, "<other>y</other>"},
		{",", label.FormPunctuation, "<pc>,</pc>"},
	}
	for _, tt := range tests {
		got, err := Emit(tt.content, tt.label)
		if err != nil {
			t.Fatalf("Emit(%q, %s): %v", tt.content, tt.label, err)
		}
		if got != tt.want {
			t.Errorf("Emit(%q, %s) = %q, want %q", tt.content, tt.label, got, tt.want)
		}
	}
}

func TestEmitDeterministic(t *testing.T) {
	for l := label.Unlabeled + 1; l <= label.SensePunctuation; l++ {
		a, errA := Emit("ä <b> & 'c'<lb/>", l)
		b, errB := Emit("ä <b> & 'c'<lb/>", l)
		if a != b || (errA == nil) != (errB == nil) {
			t.Errorf("Emit not deterministic for %s: %q vs %q", l, a, b)
		}
	}
}

func TestEmitUnknownLabel(t *testing.T) {
	got, err := Emit("text", label.Unlabeled)
	if !errors.Is(err, apperrors.ErrInvalidLabel) {
		t.Fatalf("expected InvalidLabel, got %v", err)
	}
	if got != "" {
		t.Errorf("expected no output, got %q", got)
	}
	if _, err := EmitTag("text", "<bogus>", label.LexicalEntry); !errors.Is(err, apperrors.ErrInvalidLabel) {
		t.Fatalf("EmitTag: expected InvalidLabel, got %v", err)
	}
}

func TestSerializeTree(t *testing.T) {
	nodes := []*Node{
		Branch(label.EntryForm, []*Node{
			Leaf(label.FormOrth, "cat"),
			Leaf(label.FormPunctuation, ","),
			Leaf(label.FormGramGrp, "n."),
		}),
		Leaf(label.EntrySense, "a feline"),
		Branch(label.EntrySense, nil),
	}
	got, err := Serialize(nodes)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	want := "<form><orth>cat</orth><pc>,</pc><gramGrp>n.</gramGrp></form><sense>a feline</sense><sense></sense>"
	if got != want {
		t.Errorf("Serialize = %q, want %q", got, want)
	}
}

func TestSerializeFailsWithoutPartialOutput(t *testing.T) {
	nodes := []*Node{
		Leaf(label.EntrySense, "ok"),
		Branch(label.EntryForm, []*Node{Leaf(label.Unlabeled, "bad")}),
	}
	got, err := Serialize(nodes)
	if !errors.Is(err, apperrors.ErrInvalidLabel) {
		t.Fatalf("expected InvalidLabel, got %v", err)
	}
	if got != "" {
		t.Errorf("expected no output, got %q", got)
	}
}

func TestWalk(t *testing.T) {
	root := Branch(label.BodyEntry, []*Node{
		Branch(label.EntryForm, []*Node{Leaf(label.FormOrth, "cat")}),
		Leaf(label.EntrySense, "a feline"),
	})
	var leaves []string
	maxDepth := 0
	root.Walk(func(n *Node, depth int) bool {
		if n.IsLeaf() {
			leaves = append(leaves, n.Text)
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		return true
	})
	if strings.Join(leaves, "|") != "cat|a feline" || maxDepth != 2 {
		t.Errorf("leaves = %v, depth = %d", leaves, maxDepth)
	}
}

func TestDocumentAndInspect(t *testing.T) {
	body := "<entry><form><orth>cat</orth></form><lb/><sense>a feline</sense></entry><pb/><entry><sense>dog</sense></entry>"
	var buf bytes.Buffer
	if err := WriteDocument(&buf, body); err != nil {
		t.Fatalf("WriteDocument: %v", err)
	}
	if buf.String() != Document(body) {
		t.Fatal("WriteDocument and Document disagree")
	}
	if !strings.Contains(buf.String(), `href="lexicalEntry.rng"`) || !strings.Contains(buf.String(), `href="lexicalEntry.css"`) {
		t.Error("header does not reference the schema and stylesheet")
	}

	rep, err := Inspect(&buf)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if rep.Entries != 2 || rep.LineBreaks != 1 || rep.PageBreaks != 1 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Elements["sense"] != 2 || rep.Elements["orth"] != 1 {
		t.Errorf("elements = %v", rep.Elements)
	}
	if !rep.Valid() {
		t.Errorf("unexpected unknown elements %v", rep.Unknown)
	}
}

func TestInspectUnknownElement(t *testing.T) {
	rep, err := Inspect(strings.NewReader(Document("<entry><form><sense>x</sense></form><bogus>y</bogus></entry>")))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	want := []string{"form/sense", "lexical-entry/bogus"}
	if strings.Join(rep.Unknown, ",") != strings.Join(want, ",") {
		t.Errorf("unknown = %v, want %v", rep.Unknown, want)
	}
}

func TestInspectMalformed(t *testing.T) {
	_, err := Inspect(strings.NewReader("<tei><text><body><entry></body></text></tei>"))
	if !errors.Is(err, apperrors.ErrCorpusFormat) {
		t.Fatalf("expected CorpusFormat, got %v", err)
	}
}

func TestTemplates(t *testing.T) {
	for _, name := range TemplateNames() {
		data, err := Template("", name)
		if err != nil || len(data) == 0 {
			t.Errorf("embedded template %s: %v", name, err)
		}
	}
	dir := t.TempDir()
	if _, err := Template(dir, SchemaFile); err != nil {
		t.Errorf("missing override should fall back to the built-in copy: %v", err)
	}
}
