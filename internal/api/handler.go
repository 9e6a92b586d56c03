// Package api exposes the structuring pipeline over HTTP: documents are
// posted as layout tokens (or plain text) and come back as annotated XML.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	"github.com/mrihtar/grobid-dictionaries/internal/registry"
	"github.com/mrihtar/grobid-dictionaries/internal/structurer"
	"github.com/mrihtar/grobid-dictionaries/internal/tei"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
)

const maxBodyBytes = 64 << 20

// StructureRequest is the body of POST /v1/structure. Either Tokens or Text
// is set; Text is tokenized with a single default font.
type StructureRequest struct {
	Name   string         `json:"name"`
	Stage  string         `json:"stage,omitempty"`
	Tokens []layout.Token `json:"tokens,omitempty"`
	Text   string         `json:"text,omitempty"`
}

// StructureResponse carries the annotated document.
type StructureResponse struct {
	Name   string         `json:"name"`
	Stage  string         `json:"stage"`
	Mode   string         `json:"mode"`
	TEI    string         `json:"tei"`
	Labels map[string]int `json:"labels"`
}

// RunStore is the read side of the run registry.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]registry.Run, error)
	GetRun(ctx context.Context, id string) (*registry.Run, error)
	Documents(ctx context.Context, runID string) ([]registry.Document, error)
}

type Handler struct {
	structurer *structurer.Structurer
	runs       RunStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns a Handler. runs may be nil when no registry is configured.
func New(s *structurer.Structurer, runs RunStore, m *metrics.Metrics) *Handler {
	return &Handler{
		structurer: s,
		runs:       runs,
		metrics:    m,
		logger:     slog.Default().With("component", "api-handler"),
	}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/structure", h.Structure)
	mux.HandleFunc("POST /v1/inspect", h.Inspect)
	mux.HandleFunc("GET /v1/runs", h.ListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", h.GetRun)
}

func (h *Handler) Structure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req StructureRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := ValidateStructureRequest(&req); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := label.BodySegmentation
	if req.Stage != "" {
		st, _ = label.ParseStage(req.Stage)
	}
	tokens := req.Tokens
	if req.Text != "" {
		tokens = layout.Tokenize(req.Text, layout.FontDescriptor{})
	}
	for i := range tokens {
		tokens[i].Index = i
	}

	doc, labels, err := h.render(ctx, st, tokens)
	if err != nil {
		h.metrics.ObserveDocument("failed")
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("structuring failed", "name", req.Name, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	h.metrics.ObserveDocument("ok")
	log.Info("document structured", "name", req.Name, "stage", st.String(), "tokens", len(tokens))
	h.writeJSON(w, http.StatusOK, StructureResponse{
		Name:   req.Name,
		Stage:  st.String(),
		Mode:   h.structurer.Mode().String(),
		TEI:    doc,
		Labels: labels,
	})
}

func (h *Handler) render(ctx context.Context, st label.Stage, tokens []layout.Token) (string, map[string]int, error) {
	res, err := h.structurer.Structure(ctx, st, tokens)
	if err != nil {
		return "", nil, err
	}
	doc, err := res.Document(st)
	if err != nil {
		return "", nil, err
	}
	return doc, res.Labels, nil
}

// Inspect checks a posted annotated document against the label taxonomy.
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	report, err := tei.Inspect(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	status := http.StatusOK
	if !report.Valid() {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, report)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "run registry not configured")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing runs failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "listing runs failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusNotFound, "run registry not configured")
		return
	}
	id := r.PathValue("id")
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	docs, err := h.runs.Documents(r.Context(), id)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing run documents failed", "run_id", id, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "listing run documents failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"run": run, "documents": docs})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
