package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestToMessageCopiesHeaders(t *testing.T) {
	m := toMessage(kafka.Message{
		Key:     []byte("doc-1"),
		Value:   []byte(`{}`),
		Headers: []kafka.Header{{Key: "request_id", Value: []byte("req-1")}},
	})
	if string(m.Key) != "doc-1" || m.Headers["request_id"] != "req-1" {
		t.Errorf("message = %+v", m)
	}
	if m := toMessage(kafka.Message{Value: []byte("x")}); m.Headers != nil {
		t.Errorf("headers = %v, want nil", m.Headers)
	}
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		Name string `json:"name"`
	}
	e, err := DecodeJSON[event]([]byte(`{"name":"dict"}`))
	if err != nil || e.Name != "dict" {
		t.Errorf("DecodeJSON = %+v, %v", e, err)
	}
	if _, err := DecodeJSON[event]([]byte(`{`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestToHeaders(t *testing.T) {
	if h := toHeaders(nil); h != nil {
		t.Errorf("toHeaders(nil) = %v", h)
	}
	h := toHeaders(map[string]string{"request_id": "req-9"})
	if len(h) != 1 || h[0].Key != "request_id" || string(h[0].Value) != "req-9" {
		t.Errorf("toHeaders = %v", h)
	}
}
