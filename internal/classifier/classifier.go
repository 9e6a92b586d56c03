// Package classifier holds the clients of the external stage classifiers
// and the wrappers applied around them: label caching, a circuit breaker,
// call timeouts and metrics.
package classifier

import (
	"context"
	"strings"
)

// Classifier labels a feature matrix. The output has one line per input row,
// in order; the label is the last whitespace-separated field of each line.
type Classifier interface {
	Label(ctx context.Context, features string) (string, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, features string) (string, error)

func (f Func) Label(ctx context.Context, features string) (string, error) {
	return f(ctx, features)
}

// ParseOutput extracts the label of every non-blank output line.
func ParseOutput(output string) []string {
	var labels []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		labels = append(labels, fields[len(fields)-1])
	}
	return labels
}
