// Package worker structures token documents arriving on a Kafka topic and
// publishes the annotated result to another topic.
package worker

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/mrihtar/grobid-dictionaries/internal/corpus"
	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	"github.com/mrihtar/grobid-dictionaries/internal/structurer"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/kafka"
	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
)

// RequestIDHeader carries the request id of a document message.
const RequestIDHeader = "request_id"

// DocumentEvent is a token document to structure.
type DocumentEvent struct {
	ID     string         `json:"id,omitempty"`
	Name   string         `json:"name"`
	Stage  string         `json:"stage,omitempty"`
	Tokens []layout.Token `json:"tokens"`
}

// StructuredEvent is the outcome of one document. Error is set instead of
// TEI when the document could not be structured.
type StructuredEvent struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	TEI    string         `json:"tei,omitempty"`
	Labels map[string]int `json:"labels,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Publisher sends results downstream.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Worker turns document messages into structured results.
type Worker struct {
	structurer *structurer.Structurer
	publisher  Publisher
	observer   corpus.Observer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New returns a Worker. observer and m may be nil.
func New(s *structurer.Structurer, pub Publisher, observer corpus.Observer, m *metrics.Metrics) *Worker {
	return &Worker{
		structurer: s,
		publisher:  pub,
		observer:   observer,
		metrics:    m,
		logger:     slog.Default().With("component", "structuring-worker"),
	}
}

// DocumentID derives a stable id from the message content.
func DocumentID(value []byte) string {
	sum := blake3.Sum256(value)
	return hex.EncodeToString(sum[:16])
}

// Handle processes one message. Every decodable document yields exactly one
// result: failed ones, classifier failures included, carry Error instead of
// TEI. The consumer commits past a failed message, so the published result
// is the only record of it. Undecodable messages are logged and dropped.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeJSON[DocumentEvent](msg.Value)
	if err != nil {
		w.logger.Error("failed to decode document event", "error", err, "key", string(msg.Key))
		return nil
	}
	if event.ID == "" {
		event.ID = DocumentID(msg.Value)
	}
	if id := msg.Headers[RequestIDHeader]; id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	log := logger.FromContext(ctx).With("doc_id", event.ID, "name", event.Name)

	doc, labels, err := w.structure(ctx, &event)
	status := corpus.StatusOK
	if err != nil {
		status = corpus.StatusFailed
	}
	w.metrics.ObserveDocument(status)
	if w.observer != nil {
		w.observer.DocumentDone(ctx, event.Name, status, labels, err)
	}

	result := StructuredEvent{ID: event.ID, Name: event.Name, TEI: doc, Labels: labels}
	switch {
	case errors.Is(err, apperrors.ErrClassifierFailure):
		log.Error("classifier failed", "error", err)
		result.Error = err.Error()
	case err != nil:
		log.Warn("document rejected", "error", err)
		result.Error = err.Error()
	}
	headers := map[string]string{}
	if id := logger.RequestID(ctx); id != "" {
		headers[RequestIDHeader] = id
	}
	if err := w.publisher.Publish(ctx, kafka.Event{Key: event.ID, Value: result, Headers: headers}); err != nil {
		return fmt.Errorf("publishing result of %s: %w", event.ID, err)
	}
	log.Info("document structured", "status", status)
	return nil
}

func (w *Worker) structure(ctx context.Context, event *DocumentEvent) (string, map[string]int, error) {
	st := label.BodySegmentation
	if event.Stage != "" {
		var err error
		if st, err = label.ParseStage(event.Stage); err != nil {
			return "", nil, apperrors.InvalidInput("%v", err)
		}
	}
	for i := range event.Tokens {
		event.Tokens[i].Index = i
	}
	res, err := w.structurer.Structure(ctx, st, event.Tokens)
	if err != nil {
		return "", nil, err
	}
	doc, err := res.Document(st)
	if err != nil {
		return "", res.Labels, err
	}
	return doc, res.Labels, nil
}
