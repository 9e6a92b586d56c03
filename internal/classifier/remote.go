package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/resilience"
	"github.com/mrihtar/grobid-dictionaries/pkg/rpc"
)

// LabelMethod is the RPC method served by model hosts.
const LabelMethod = "Classifier.Label"

// LabelRequest asks a model host to label a feature matrix.
type LabelRequest struct {
	Model    string `json:"model"`
	Features string `json:"features"`
}

// LabelResponse carries the labelled output.
type LabelResponse struct {
	Output string `json:"output"`
}

// Remote calls a model host over RPC.
type Remote struct {
	client *rpc.Client
	model  string
}

// Dial connects to the model host at addr, retrying with backoff while the
// host comes up. Only the connection is retried; labelling calls never are.
func Dial(ctx context.Context, addr, model string) (*Remote, error) {
	var client *rpc.Client
	err := resilience.Retry(ctx, "dial "+model, resilience.RetryConfig{
		Retryable: func(err error) bool { return !errors.Is(err, context.Canceled) },
	}, func() error {
		c, err := rpc.Dial(ctx, addr)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s classifier: %w", model, err)
	}
	client.RequestID = logger.RequestID
	return &Remote{client: client, model: model}, nil
}

func (r *Remote) Label(ctx context.Context, features string) (string, error) {
	var resp LabelResponse
	if err := r.client.Call(ctx, LabelMethod, &LabelRequest{Model: r.model, Features: features}, &resp); err != nil {
		return "", fmt.Errorf("labelling with %s: %w", r.model, err)
	}
	return resp.Output, nil
}

// Close releases the connection.
func (r *Remote) Close() error {
	return r.client.Close()
}

// Register serves models on s under LabelMethod, dispatching on the model
// name of each request.
func Register(s *rpc.Server, models map[string]Classifier) {
	log := slog.Default().With("component", "classifier-host")
	s.Register(LabelMethod, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req LabelRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("decoding label request: %w", err)
		}
		c, ok := models[req.Model]
		if !ok {
			return nil, fmt.Errorf("unknown model %q", req.Model)
		}
		out, err := c.Label(ctx, req.Features)
		if err != nil {
			log.Warn("labelling failed", "model", req.Model, "request_id", rpc.RequestIDFrom(ctx), "error", err)
			return nil, err
		}
		return &LabelResponse{Output: out}, nil
	})
}
