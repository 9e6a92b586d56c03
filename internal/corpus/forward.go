package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mrihtar/grobid-dictionaries/internal/label"
	"github.com/mrihtar/grobid-dictionaries/internal/layout"
	"github.com/mrihtar/grobid-dictionaries/internal/structurer"
	"github.com/mrihtar/grobid-dictionaries/internal/tei"
	apperrors "github.com/mrihtar/grobid-dictionaries/pkg/errors"
)

// Artifact name suffixes of one document.
const (
	FeaturesSuffix = ".training.lexicalEntry"
	RawSuffix      = ".training.lexicalEntry.rawtxt"
	TEISuffix      = ".training.lexicalEntry.tei.xml"
)

// Artifacts names the files generated for one document.
type Artifacts struct {
	Features string
	Raw      string
	TEI      string
}

// ArtifactPaths returns the artifact triple of the document base name in
// dir.
func ArtifactPaths(dir, base string) Artifacts {
	p := filepath.Join(dir, base)
	return Artifacts{Features: p + FeaturesSuffix, Raw: p + RawSuffix, TEI: p + TEISuffix}
}

// Generator writes the training artifacts of single documents. Entries are
// found by the body segmentation stage; in annotated mode each entry is
// pre-labelled by the lexical entry stage so that annotators only correct
// it.
type Generator struct {
	structurer *structurer.Structurer
	annotated  bool
	logger     *slog.Logger
}

// NewGenerator returns a Generator. The structurer needs the body
// segmentation stage, plus the lexical entry stage when annotated is set.
func NewGenerator(s *structurer.Structurer, annotated bool) (*Generator, error) {
	if !s.Has(label.BodySegmentation) {
		return nil, fmt.Errorf("training generation needs the %s stage", label.BodySegmentation)
	}
	if annotated && !s.Has(label.LexicalEntry) {
		return nil, fmt.Errorf("annotated training generation needs the %s stage", label.LexicalEntry)
	}
	return &Generator{
		structurer: s,
		annotated:  annotated,
		logger:     slog.Default().With("component", "training-generator"),
	}, nil
}

// DocumentResult describes the artifacts written for one document.
type DocumentResult struct {
	Artifacts Artifacts
	Entries   int
	Labels    map[string]int
}

// Generate writes the artifact triple of doc into dir. The files are
// committed in order, so a failed commit can leave earlier files of the
// triple in place; nothing is left behind when generation itself fails.
func (g *Generator) Generate(ctx context.Context, doc *layout.Document, dir string) (*DocumentResult, error) {
	body, err := g.structurer.Segment(ctx, label.BodySegmentation, doc.Tokens)
	if err != nil {
		return nil, fmt.Errorf("segmenting %s: %w", doc.Name, err)
	}

	res := &DocumentResult{
		Artifacts: ArtifactPaths(dir, doc.BaseName()),
		Labels:    body.Labels,
	}
	var features, raw, entries strings.Builder
	for _, n := range body.Nodes {
		if n.Label != label.BodyEntry {
			continue
		}
		res.Entries++
		raw.WriteString(layout.Text(n.Tokens))
		entries.WriteString("<entry>")
		if g.annotated {
			xml, err := g.annotate(ctx, n.Tokens, &features, res.Labels)
			if err != nil {
				return nil, fmt.Errorf("labelling entry %d of %s: %w", res.Entries, doc.Name, err)
			}
			entries.WriteString(xml)
		} else {
			entries.WriteString(tei.Escape(layout.TextWithLineBreaks(n.Tokens)))
		}
		entries.WriteString("</entry>")
	}

	document := tei.Document(entries.String())
	report, err := tei.Inspect(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", res.Artifacts.TEI, err)
	}
	if !report.Valid() {
		return nil, apperrors.InvalidLabel("%s contains elements outside the taxonomy: %s", res.Artifacts.TEI, strings.Join(report.Unknown, ", "))
	}

	if err := writeTriple(res.Artifacts, features.String(), raw.String(), document); err != nil {
		return nil, err
	}
	g.logger.Debug("training artifacts written", "document", doc.Name, "entries", res.Entries)
	return res, nil
}

// annotate appends the lexical entry features of tokens to features and
// returns the labelled entry content.
func (g *Generator) annotate(ctx context.Context, tokens []layout.Token, features *strings.Builder, counts map[string]int) (string, error) {
	m, err := g.structurer.Features(label.LexicalEntry, tokens)
	if err != nil {
		return "", err
	}
	if m.Blank() {
		return "", nil
	}
	features.WriteString(m.String())
	features.WriteByte('\n')

	res, err := g.structurer.Segment(ctx, label.LexicalEntry, tokens)
	if err != nil {
		return "", err
	}
	for k, v := range res.Labels {
		counts[k] += v
	}
	return tei.Serialize(res.Nodes)
}

func writeTriple(a Artifacts, features, raw, document string) (err error) {
	var files [3]*artifact
	defer func() {
		if closeErr := closeAll(files[:]...); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	for i, f := range []struct {
		path, content string
	}{{a.Features, features}, {a.Raw, raw}, {a.TEI, document}} {
		files[i], err = createArtifact(f.path, false)
		if err != nil {
			return err
		}
		if _, err = files[i].WriteString(f.content); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	return commitAll(files[:]...)
}

// WriteTemplates copies the schema and stylesheet referenced by the
// annotated documents into dir. Templates in templateDir override the
// built-in ones.
func WriteTemplates(dir, templateDir string) error {
	for _, name := range tei.TemplateNames() {
		data, err := tei.Template(templateDir, name)
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}
