package classifier

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mrihtar/grobid-dictionaries/pkg/config"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
	"github.com/mrihtar/grobid-dictionaries/pkg/resilience"
	"github.com/mrihtar/grobid-dictionaries/pkg/rpc"
)

// echoLabel labels every row with a fixed tag.
func echoLabel(tag string) Func {
	return func(_ context.Context, features string) (string, error) {
		var sb strings.Builder
		for _, line := range strings.Split(strings.TrimRight(features, "\n"), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			sb.WriteString(line + " " + tag + "\n")
		}
		return sb.String(), nil
	}
}

func TestParseOutput(t *testing.T) {
	out := "cat LINE_START NEWFONT I-<orth>\n\n, LINE_IN SAMEFONT <pc>\n  \nn. LINE_END SAMEFONT I-<gramGrp>\n"
	want := []string{"I-<orth>", "<pc>", "I-<gramGrp>"}
	if got := ParseOutput(out); !reflect.DeepEqual(got, want) {
		t.Errorf("ParseOutput = %v, want %v", got, want)
	}
	if got := ParseOutput(""); len(got) != 0 {
		t.Errorf("ParseOutput(\"\") = %v", got)
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

func (s *memStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", false, errors.New("store down")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.data[key] = value
	return nil
}

func TestCacheHitsAndMisses(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	var calls atomic.Int32
	next := Func(func(ctx context.Context, f string) (string, error) {
		calls.Add(1)
		return echoLabel("<sense>")(ctx, f)
	})
	c := NewCache(next, &memStore{data: map[string]string{}}, "sense", time.Hour, m)

	for i := 0; i < 3; i++ {
		out, err := c.Label(context.Background(), "a\nfeline\n")
		if err != nil {
			t.Fatalf("Label: %v", err)
		}
		if out != "a <sense>\nfeline <sense>\n" {
			t.Fatalf("out = %q", out)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
	if got := testutil.ToFloat64(m.LabelCacheHitsTotal); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
}

func TestCacheSharesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	next := Func(func(ctx context.Context, f string) (string, error) {
		calls.Add(1)
		<-release
		return "x <form>\n", nil
	})
	c := NewCache(next, &memStore{data: map[string]string{}}, "lexical-entry", time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Label(context.Background(), "x\n"); err != nil {
				t.Errorf("Label: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestCacheSkipsMalformedOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"too few labels", "a <sense>\n"},
		{"bare begin marker", "a I-<sense>\nfeline I-\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			next := Func(func(context.Context, string) (string, error) {
				calls.Add(1)
				return tt.out, nil
			})
			store := &memStore{data: map[string]string{}}
			c := NewCache(next, store, "sense", time.Hour, nil)
			for i := 0; i < 2; i++ {
				out, err := c.Label(context.Background(), "a\nfeline\n")
				if err != nil || out != tt.out {
					t.Fatalf("Label = %q, %v", out, err)
				}
			}
			if len(store.data) != 0 {
				t.Errorf("malformed output was cached: %v", store.data)
			}
			if calls.Load() != 2 {
				t.Errorf("upstream calls = %d, want 2", calls.Load())
			}
		})
	}
}

func TestCacheDegradesWhenStoreFails(t *testing.T) {
	c := NewCache(echoLabel("<entry>"), &memStore{fail: true}, "body", time.Hour, nil)
	out, err := c.Label(context.Background(), "cat\n")
	if err != nil || out != "cat <entry>\n" {
		t.Fatalf("Label = %q, %v", out, err)
	}
}

func TestKeyDependsOnModelAndFeatures(t *testing.T) {
	a := Key("form", "cat\n")
	if a != Key("form", "cat\n") {
		t.Fatal("key not stable")
	}
	if a == Key("sense", "cat\n") || a == Key("form", "dog\n") {
		t.Fatal("key collision")
	}
	if !strings.HasPrefix(a, "labels:form:") {
		t.Errorf("key = %q", a)
	}
}

func TestGuardedWrapsFailures(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cfg := config.ClassifierConfig{Timeout: time.Second, FailureThreshold: 2, ResetTimeout: time.Hour}
	g := NewGuarded(Func(func(context.Context, string) (string, error) {
		return "", errors.New("model crashed")
	}), "form", cfg, m)

	for i := 0; i < 2; i++ {
		if _, err := g.Label(context.Background(), "cat\n"); !errors.Is(err, apperrors.ErrClassifierFailure) {
			t.Fatalf("expected ClassifierFailure, got %v", err)
		}
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %s", g.State())
	}
	_, err := g.Label(context.Background(), "cat\n")
	if !errors.Is(err, apperrors.ErrClassifierFailure) || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("open breaker error = %v", err)
	}
	if got := testutil.ToFloat64(m.ClassifierFailures.WithLabelValues("form")); got != 3 {
		t.Errorf("failures = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("form")); got != float64(resilience.StateOpen) {
		t.Errorf("breaker gauge = %v", got)
	}
}

func TestGuardedTimeout(t *testing.T) {
	cfg := config.ClassifierConfig{Timeout: 10 * time.Millisecond, FailureThreshold: 5, ResetTimeout: time.Hour}
	g := NewGuarded(Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), "sense", cfg, nil)
	if _, err := g.Label(context.Background(), "a\n"); !errors.Is(err, apperrors.ErrClassifierFailure) {
		t.Fatalf("expected ClassifierFailure on timeout, got %v", err)
	}
}

func TestRemoteAgainstModelHost(t *testing.T) {
	s := rpc.NewServer()
	Register(s, map[string]Classifier{"form": echoLabel("<orth>")})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.ServeListener(ln)
	defer s.Stop()

	r, err := Dial(context.Background(), s.Addr(), "form")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer r.Close()

	out, err := r.Label(context.Background(), "cat\n")
	if err != nil || out != "cat <orth>\n" {
		t.Fatalf("Label = %q, %v", out, err)
	}

	bad, err := Dial(context.Background(), s.Addr(), "etymology")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer bad.Close()
	if _, err := bad.Label(context.Background(), "cat\n"); err == nil || !strings.Contains(err.Error(), "unknown model") {
		t.Errorf("expected unknown model error, got %v", err)
	}
}
