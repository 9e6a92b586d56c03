package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrihtar/grobid-dictionaries/internal/classifier"
	"github.com/mrihtar/grobid-dictionaries/internal/feature"
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/registry"
	"github.com/mrihtar/grobid-dictionaries/internal/structurer"
	"github.com/mrihtar/grobid-dictionaries/internal/tei"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

func byWord(m map[string]string) classifier.Classifier {
	return classifier.Func(func(_ context.Context, features string) (string, error) {
		var sb strings.Builder
		for _, row := range strings.Split(strings.TrimRight(features, "\n"), "\n") {
			word := strings.Fields(row)[0]
			raw, ok := m[word]
			if !ok {
				return "", errors.New("model has no label for " + word)
			}
			sb.WriteString(row + " " + raw + "\n")
		}
		return sb.String(), nil
	})
}

type fakeRuns struct {
	runs []registry.Run
}

func (f *fakeRuns) ListRuns(_ context.Context, limit int) ([]registry.Run, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*registry.Run, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, apperrors.InputUnavailable("run %s not found", id)
}

func (f *fakeRuns) Documents(context.Context, string) ([]registry.Document, error) {
	return []registry.Document{{Path: "in/a.json", Status: "ok"}}, nil
}

func newServer(t *testing.T) *http.ServeMux {
	t.Helper()
	s, err := structurer.New(structurer.Options{},
		structurer.Stage{Stage: label.BodySegmentation, Annotator: feature.NewTokenAnnotator(nil),
			Classifier: byWord(map[string]string{"cat": "I-<entry>", "a": "<entry>", "feline": "<entry>"})},
		structurer.Stage{Stage: label.LexicalEntry, Annotator: feature.NewTokenAnnotator(nil),
			Classifier: byWord(map[string]string{"cat": "I-<form>", "a": "I-<sense>", "feline": "<sense>"})},
	)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	New(s, &fakeRuns{runs: []registry.Run{{ID: "r1", Status: registry.RunFinished}, {ID: "r2"}}}, nil).Routes(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
	return rec
}

func TestStructure(t *testing.T) {
	mux := newServer(t)
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTEI    string
	}{
		{"text", `{"name":"d","text":"cat a feline"}`, http.StatusOK, "<entry><form>cat</form><sense>a feline</sense></entry>"},
		{"tokens at lexical stage", `{"stage":"lexical-entry","tokens":[{"text":"cat"},{"text":" "},{"text":"a"}]}`, http.StatusOK, "<entry><form>cat</form><sense>a</sense></entry>"},
		{"invalid json", `{`, http.StatusBadRequest, ""},
		{"missing input", `{"name":"d"}`, http.StatusBadRequest, ""},
		{"unknown stage", `{"text":"cat","stage":"header"}`, http.StatusBadRequest, ""},
		{"classifier failure", `{"text":"dog"}`, http.StatusBadGateway, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/v1/structure", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantTEI == "" {
				return
			}
			var resp StructureResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(resp.TEI, tt.wantTEI) {
				t.Errorf("TEI = %s", resp.TEI)
			}
			if resp.Mode != "segment" {
				t.Errorf("Mode = %q", resp.Mode)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	mux := newServer(t)
	rec := do(t, mux, http.MethodPost, "/v1/inspect", tei.Document("<entry><form>cat</form></entry>"))
	if rec.Code != http.StatusOK {
		t.Errorf("valid document status = %d", rec.Code)
	}
	rec = do(t, mux, http.MethodPost, "/v1/inspect", tei.Document("<entry><bogus>cat</bogus></entry>"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown element status = %d", rec.Code)
	}
	rec = do(t, mux, http.MethodPost, "/v1/inspect", "<entry>")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed status = %d", rec.Code)
	}
}

func TestRuns(t *testing.T) {
	mux := newServer(t)
	if rec := do(t, mux, http.MethodGet, "/v1/runs?limit=1", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"r1"`) || strings.Contains(rec.Body.String(), `"r2"`) {
		t.Errorf("list = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, http.MethodGet, "/v1/runs?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/v1/runs/r2", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "in/a.json") {
		t.Errorf("get = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, http.MethodGet, "/v1/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rec.Code)
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	err := ValidateStructureRequest(&StructureRequest{Text: "cat", Tokens: nil, Stage: "bogus", Name: strings.Repeat("x", maxNameLength+1)})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("err = %v", err)
	}
	if got := verr.Error(); !strings.HasPrefix(got, "name:") {
		t.Errorf("Error() = %q, want sorted fields", got)
	}
}
