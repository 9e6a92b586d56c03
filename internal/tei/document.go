package tei

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Schema and stylesheet file names referenced by the document header.
const (
	SchemaFile     = "lexicalEntry.rng"
	StylesheetFile = "lexicalEntry.css"
)

const header = `<?xml version="1.0" encoding="UTF-8"?>
<?xml-model href="` + SchemaFile + `" type="application/xml" schematypens="http://relaxng.org/ns/structure/1.0"
?>
<?xml-stylesheet type="text/css" href="` + StylesheetFile + `"?>
<tei xml:space="preserve">
	<teiHeader>
		<fileDesc xml:id=""/>
	</teiHeader>
	<text>
		<body>`

const footer = "</body>\n\t</text>\n</tei>\n"

//go:embed templates/*
var templates embed.FS

// WriteDocument writes body wrapped in the annotated document envelope.
func WriteDocument(w io.Writer, body string) error {
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("writing document header: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("writing document body: %w", err)
	}
	if _, err := io.WriteString(w, footer); err != nil {
		return fmt.Errorf("writing document footer: %w", err)
	}
	return nil
}

// Document returns body wrapped in the annotated document envelope.
func Document(body string) string {
	return header + body + footer
}

// TemplateNames lists the files copied next to a generated corpus.
func TemplateNames() []string {
	return []string{SchemaFile, StylesheetFile}
}

// Template returns the named template. When dir is not empty a file of the
// same name there takes precedence over the built-in copy.
func Template(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading template %s: %w", name, err)
		}
	}
	data, err := fs.ReadFile(templates, "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return data, nil
}
