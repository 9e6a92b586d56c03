package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
)

const (
	maxNameLength = 1024
	maxTokens     = 200000
	maxTextLength = 4 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateStructureRequest checks the request shape. It does not look at
// token contents beyond counting them.
func ValidateStructureRequest(req *StructureRequest) error {
	errs := make(map[string]string)

	if len(req.Name) > maxNameLength {
		errs["name"] = fmt.Sprintf("name must be at most %d characters", maxNameLength)
	}
	switch {
	case len(req.Tokens) > 0 && req.Text != "":
		errs["tokens"] = "tokens and text are mutually exclusive"
	case len(req.Tokens) == 0 && strings.TrimSpace(req.Text) == "":
		errs["tokens"] = "tokens or text is required"
	case len(req.Tokens) > maxTokens:
		errs["tokens"] = fmt.Sprintf("at most %d tokens are accepted", maxTokens)
	case len(req.Text) > maxTextLength:
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if req.Stage != "" {
		if _, err := label.ParseStage(req.Stage); err != nil {
			errs["stage"] = err.Error()
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
