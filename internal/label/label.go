// Package label defines the closed per-stage label taxonomies, their mapping
// to output element names, and the compound labels whose spans are handed
// to a further stage.
package label

import (
	"fmt"
	"strings"

	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

// Stage is one model of the cascade. Each stage owns a disjoint label set.
type Stage int

const (
	BodySegmentation Stage = iota
	LexicalEntry
	Form
	Sense
)

// Stages lists every stage in cascade order.
var Stages = []Stage{BodySegmentation, LexicalEntry, Form, Sense}

func (s Stage) String() string {
	switch s {
	case BodySegmentation:
		return "dictionary-body-segmentation"
	case LexicalEntry:
		return "lexical-entry"
	case Form:
		return "form"
	case Sense:
		return "sense"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage resolves a stage from its model name.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Label is a member of one stage taxonomy. The zero value is Unlabeled,
// which belongs to no stage and maps to no element.
type Label int

const (
	Unlabeled Label = iota

	BodyEntry
	BodyDictScrap
	BodyPunctuation

	EntryForm
	EntryEtym
	EntrySense
	EntryRelatedEntry
	EntryOther
	EntryPunctuation

	FormOrth
	FormPron
	FormGramGrp
	FormLang
	FormDictScrap
	FormPunctuation

	SenseSubSense
	SenseNote
	SenseGramGrp
	SenseDictScrap
	SensePunctuation

	labelCount
)

// Stage returns the stage the label belongs to. Unlabeled has none.
func (l Label) Stage() (Stage, bool) {
	switch l {
	case BodyEntry, BodyDictScrap, BodyPunctuation:
		return BodySegmentation, true
	case EntryForm, EntryEtym, EntrySense, EntryRelatedEntry, EntryOther, EntryPunctuation:
		return LexicalEntry, true
	case FormOrth, FormPron, FormGramGrp, FormLang, FormDictScrap, FormPunctuation:
		return Form, true
	case SenseSubSense, SenseNote, SenseGramGrp, SenseDictScrap, SensePunctuation:
		return Sense, true
	case Unlabeled:
		return 0, false
	}
	return 0, false
}

// Tag returns the classifier-facing tag, e.g. "<sense>".
func (l Label) Tag() string {
	switch l {
	case BodyEntry:
		return "<entry>"
	case BodyDictScrap, FormDictScrap, SenseDictScrap:
		return "<dictScrap>"
	case BodyPunctuation, EntryPunctuation, FormPunctuation, SensePunctuation:
		return "<pc>"
	case EntryForm:
		return "<form>"
	case EntryEtym:
		return "<etym>"
	case EntrySense:
		return "<sense>"
	case EntryRelatedEntry:
		return "<re>"
	case EntryOther:
		return "<other>"
	case FormOrth:
		return "<orth>"
	case FormPron:
		return "<pron>"
	case FormGramGrp, SenseGramGrp:
		return "<gramGrp>"
	case FormLang:
		return "<lang>"
	case SenseSubSense:
		return "<subSense>"
	case SenseNote:
		return "<note>"
	case Unlabeled:
		return ""
	}
	return ""
}

// Element returns the output element name the label is serialised as.
func (l Label) Element() (string, bool) {
	switch l {
	case BodyEntry:
		return "entry", true
	case BodyDictScrap:
		// historical element name kept for compatibility with existing corpora
		return "dictScarp", true
	case BodyPunctuation, EntryPunctuation, FormPunctuation, SensePunctuation:
		return "pc", true
	case EntryForm:
		return "form", true
	case EntryEtym:
		return "etym", true
	case EntrySense:
		return "sense", true
	case EntryRelatedEntry:
		return "re", true
	case EntryOther:
		return "other", true
	case FormOrth:
		return "orth", true
	case FormPron:
		return "pron", true
	case FormGramGrp, SenseGramGrp:
		return "gramGrp", true
	case FormLang:
		return "lang", true
	case FormDictScrap, SenseDictScrap:
		return "dictScrap", true
	case SenseSubSense:
		return "subSense", true
	case SenseNote:
		return "note", true
	case Unlabeled:
		return "", false
	}
	return "", false
}

// Next reports the stage a compound label's span is re-labelled by.
func (l Label) Next() (Stage, bool) {
	switch l {
	case BodyEntry:
		return LexicalEntry, true
	case EntryForm:
		return Form, true
	case EntrySense:
		return Sense, true
	}
	return 0, false
}

func (l Label) String() string {
	if l == Unlabeled {
		return "unlabeled"
	}
	s, _ := l.Stage()
	return s.String() + ":" + l.Tag()
}

// Labels returns the taxonomy of a stage in declaration order.
func Labels(s Stage) []Label {
	var out []Label
	for l := Unlabeled + 1; l < labelCount; l++ {
		if ls, ok := l.Stage(); ok && ls == s {
			out = append(out, l)
		}
	}
	return out
}

// BeginPrefix marks the first token of a run in raw classifier labels.
const BeginPrefix = "I-"

// SplitRaw separates the begin marker from a raw label.
func SplitRaw(raw string) (tag string, begin bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, BeginPrefix) {
		return raw[len(BeginPrefix):], true
	}
	return raw, false
}

// Parse resolves a raw classifier label (with or without the begin marker)
// against the taxonomy of stage s. A tag outside that taxonomy is an
// InvalidLabel error.
func Parse(s Stage, raw string) (Label, bool, error) {
	tag, begin := SplitRaw(raw)
	for _, l := range Labels(s) {
		if l.Tag() == tag {
			return l, begin, nil
		}
	}
	return Unlabeled, begin, apperrors.InvalidLabel("%q is not a %s label", raw, s)
}

// FromElement resolves an element name against the taxonomy of stage s.
// Both the element name and the bare tag name are accepted, so corpora
// written with either spelling read back to the same label.
func FromElement(s Stage, name string) (Label, error) {
	for _, l := range Labels(s) {
		if el, _ := l.Element(); el == name {
			return l, nil
		}
		if l.Tag() == "<"+name+">" {
			return l, nil
		}
	}
	return Unlabeled, apperrors.InvalidLabel("element %q is not a %s label", name, s)
}
