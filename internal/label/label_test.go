package label

import (
	"errors"
	"testing"

	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

func TestEveryLabelHasStageTagAndElement(t *testing.T) {
	for l := Unlabeled + 1; l < labelCount; l++ {
		if _, ok := l.Stage(); !ok {
			t.Errorf("label %d has no stage", int(l))
		}
		if l.Tag() == "" {
			t.Errorf("label %d has no tag", int(l))
		}
		if _, ok := l.Element(); !ok {
			t.Errorf("label %d has no element", int(l))
		}
	}
}

func TestTagsUniqueWithinStage(t *testing.T) {
	for _, s := range Stages {
		seen := map[string]bool{}
		for _, l := range Labels(s) {
			if seen[l.Tag()] {
				t.Errorf("stage %s has duplicate tag %s", s, l.Tag())
			}
			seen[l.Tag()] = true
		}
	}
}

func TestLexicalEntryElementTable(t *testing.T) {
	want := map[Label]string{
		BodyEntry:         "entry",
		BodyDictScrap:     "dictScarp",
		BodyPunctuation:   "pc",
		EntryForm:         "form",
		EntryEtym:         "etym",
		EntrySense:        "sense",
		EntryRelatedEntry: "re",
		EntryOther:        "other",
		EntryPunctuation:  "pc",
	}
	for l, el := range want {
		got, ok := l.Element()
		if !ok || got != el {
			t.Errorf("%s.Element() = %q, %v; want %q", l, got, ok, el)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		stage     Stage
		raw       string
		want      Label
		wantBegin bool
		wantErr   bool
	}{
		{LexicalEntry, "I-<form>", EntryForm, true, false},
		{LexicalEntry, "<form>", EntryForm, false, false},
		{LexicalEntry, " <sense> ", EntrySense, false, false},
		{Form, "I-<orth>", FormOrth, true, false},
		{Sense, "<subSense>", SenseSubSense, false, false},
		{LexicalEntry, "<orth>", Unlabeled, false, true},
		{Form, "<bogus>", Unlabeled, false, true},
		{BodySegmentation, "I-<bogus>", Unlabeled, true, true},
	}
	for _, tt := range tests {
		got, begin, err := Parse(tt.stage, tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%s, %q) err = %v, wantErr %v", tt.stage, tt.raw, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, apperrors.ErrInvalidLabel) {
			t.Errorf("Parse(%s, %q) err = %v, want ErrInvalidLabel", tt.stage, tt.raw, err)
		}
		if got != tt.want || begin != tt.wantBegin {
			t.Errorf("Parse(%s, %q) = %s, %v; want %s, %v", tt.stage, tt.raw, got, begin, tt.want, tt.wantBegin)
		}
	}
}

func TestFromElementAcceptsBothSpellings(t *testing.T) {
	for _, name := range []string{"dictScarp", "dictScrap"} {
		l, err := FromElement(BodySegmentation, name)
		if err != nil || l != BodyDictScrap {
			t.Errorf("FromElement(body, %q) = %s, %v", name, l, err)
		}
	}
	if _, err := FromElement(LexicalEntry, "orth"); !errors.Is(err, apperrors.ErrInvalidLabel) {
		t.Errorf("expected InvalidLabel for orth at lexical-entry stage, got %v", err)
	}
}

func TestCompoundLabelsFormDAG(t *testing.T) {
	// every compound label must point to a later stage
	for l := Unlabeled + 1; l < labelCount; l++ {
		next, ok := l.Next()
		if !ok {
			continue
		}
		cur, _ := l.Stage()
		if next <= cur {
			t.Errorf("%s recurses into %s which is not a later stage", l, next)
		}
	}
}

func TestParseStage(t *testing.T) {
	for _, s := range Stages {
		got, err := ParseStage(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStage(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStage("header"); err == nil {
		t.Error("expected error for unknown stage")
	}
}
