package corpus

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
	"go.uber.org/multierr"
)

// artifact is an output file written to a temporary name and renamed into
// place by Commit. Close without Commit discards it.
type artifact struct {
	final string
	tmp   string
	f     *os.File
	buf   *bufio.Writer
	xzw   *xz.Writer
	w     io.Writer
	done  bool
}

// createArtifact opens path for writing. With compress the content is xz
// compressed and ".xz" is appended to path.
func createArtifact(path string, compress bool) (*artifact, error) {
	if compress {
		path += ".xz"
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	a := &artifact{final: path, tmp: f.Name(), f: f, buf: bufio.NewWriter(f)}
	a.w = a.buf
	if compress {
		xzw, err := xz.NewWriter(a.buf)
		if err != nil {
			f.Close()
			os.Remove(a.tmp)
			return nil, fmt.Errorf("creating xz writer for %s: %w", path, err)
		}
		a.xzw = xzw
		a.w = xzw
	}
	return a, nil
}

func (a *artifact) Write(p []byte) (int, error) {
	return a.w.Write(p)
}

func (a *artifact) WriteString(s string) (int, error) {
	return io.WriteString(a.w, s)
}

// Path returns the final file name.
func (a *artifact) Path() string {
	return a.final
}

// Commit flushes, syncs and renames the file into place.
func (a *artifact) Commit() error {
	if a.done {
		return fmt.Errorf("%s already closed", a.final)
	}
	a.done = true
	var err error
	if a.xzw != nil {
		err = multierr.Append(err, a.xzw.Close())
	}
	err = multierr.Append(err, a.buf.Flush())
	err = multierr.Append(err, a.f.Sync())
	err = multierr.Append(err, a.f.Close())
	if err != nil {
		os.Remove(a.tmp)
		return fmt.Errorf("writing %s: %w", a.final, err)
	}
	if err := os.Rename(a.tmp, a.final); err != nil {
		os.Remove(a.tmp)
		return fmt.Errorf("renaming %s: %w", a.final, err)
	}
	return nil
}

// Close discards an uncommitted file. It is a no-op after Commit.
func (a *artifact) Close() error {
	if a.done {
		return nil
	}
	a.done = true
	err := a.f.Close()
	if rmErr := os.Remove(a.tmp); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

// closeAll closes every artifact; a failure on one does not stop the
// others from being closed.
func closeAll(as ...*artifact) error {
	var err error
	for _, a := range as {
		if a != nil {
			err = multierr.Append(err, a.Close())
		}
	}
	return err
}

// commitAll commits the artifacts in order and stops at the first failure.
func commitAll(as ...*artifact) error {
	for _, a := range as {
		if err := a.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// writeFile writes data to path through an artifact.
func writeFile(path string, data []byte) error {
	a, err := createArtifact(path, false)
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return a.Commit()
}
