package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/layout"
)

// TrainingSuffix names the per-token label file written by the reverse
// direction.
const TrainingSuffix = ".train"

// Train generates the training artifacts of every document under input
// into output, then copies the schema and stylesheet templates next to
// them.
func Train(ctx context.Context, g *Generator, input, output, templateDir string, opts BatchOptions) (*BatchResult, error) {
	res, err := RunBatch(ctx, input, output, opts, func(ctx context.Context, path string) (map[string]int, error) {
		doc, err := layout.LoadDocument(path)
		if err != nil {
			return nil, err
		}
		dr, err := g.Generate(ctx, doc, output)
		if err != nil {
			return nil, err
		}
		return dr.Labels, nil
	})
	if err != nil {
		return res, err
	}
	if res.Documents > 0 {
		if err := WriteTemplates(output, templateDir); err != nil {
			return res, err
		}
	}
	return res, nil
}

// IsAnnotated matches annotated XML documents.
func IsAnnotated(name string) bool {
	return strings.HasSuffix(name, ".tei.xml")
}

// ReverseBatch converts every annotated document under input into a
// training file in output. With compress set the files are xz streams.
func ReverseBatch(ctx context.Context, rv *Reverser, input, output string, compress bool, opts BatchOptions) (*BatchResult, error) {
	if opts.Match == nil {
		opts.Match = IsAnnotated
	}
	return RunBatch(ctx, input, output, opts, func(ctx context.Context, path string) (map[string]int, error) {
		return reverseFile(rv, path, output, compress)
	})
}

func reverseFile(rv *Reverser, path, output string, compress bool) (labels map[string]int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), ".tei.xml")
	ex, err := rv.Reverse(f, base)
	if err != nil {
		return nil, err
	}

	out, err := createArtifact(filepath.Join(output, base+TrainingSuffix), compress)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := ex.WriteTo(out); err != nil {
		return nil, fmt.Errorf("writing %s: %w", out.Path(), err)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	return ex.Labels(), nil
}
