package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSpanAndClassifier(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveSpan("lexical-entry", "<sense>")
	m.ObserveSpan("lexical-entry", "<sense>")
	m.ObserveClassifierCall("form", 10*time.Millisecond, nil)
	m.ObserveClassifierCall("form", 10*time.Millisecond, errors.New("misaligned"))
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveDocument("ok")

	if got := testutil.ToFloat64(m.SpansTotal.WithLabelValues("lexical-entry", "<sense>")); got != 2 {
		t.Errorf("spans = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClassifierCallsTotal.WithLabelValues("form")); got != 2 {
		t.Errorf("classifier calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClassifierFailures.WithLabelValues("form")); got != 1 {
		t.Errorf("classifier failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LabelCacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("documents = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSpan("form", "<orth>")
	m.ObserveClassifierCall("form", time.Second, nil)
	m.ObserveCache(true)
	m.ObserveDocument("failed")
	m.SetBreakerState("form", 1)
}
