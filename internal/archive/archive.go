// Package archive reads and writes posting snapshots as JSON files,
// optionally zstd-compressed.
package archive

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/jobwatch/jobwatch/internal/posting"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Archive is one snapshot of a hiring thread and its postings.
type Archive struct {
	Thread   *posting.Thread    `json:"thread"`
	Postings []*posting.Posting `json:"postings"`
}

func New(thread *posting.Thread, postings []*posting.Posting) *Archive {
	return &Archive{Thread: thread, Postings: postings}
}

// Encode writes the archive as indented JSON.
func (a *Archive) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return errors.Wrap(enc.Encode(a), "cannot encode archive")
}

// WriteFile stores the archive at path. Paths ending in ".zst" are
// zstd-compressed.
func (a *Archive) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot create archive file")
	}

	if !strings.HasSuffix(path, ".zst") {
		if err := a.Encode(f); err != nil {
			_ = f.Close()
			return err
		}

		return errors.Wrap(f.Close(), "cannot close archive file")
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "cannot create zstd writer")
	}

	if err := a.Encode(zw); err != nil {
		_ = zw.Close()
		_ = f.Close()
		return err
	}

	if err := zw.Close(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "cannot flush zstd stream")
	}

	return errors.Wrap(f.Close(), "cannot close archive file")
}

// Decode reads an uncompressed archive.
func Decode(r io.Reader) (*Archive, error) {
	var a Archive
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "cannot decode archive")
	}

	return &a, nil
}

// ReadFile loads an archive written by WriteFile, transparently
// decompressing ".zst" files.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open archive file")
	}
	defer func() { _ = f.Close() }()

	if !strings.HasSuffix(path, ".zst") {
		return Decode(f)
	}

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create zstd reader")
	}
	defer zr.Close()

	return Decode(zr)
}
