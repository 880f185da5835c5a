// Package upload stores proof-of-payment files on local disk.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmpty           = errors.New("file is empty")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

const proofDir = "proofs"

// DiskStore writes files under Dir and returns references relative to
// it.  The content type is sniffed from the bytes; the client-supplied
// name is never used for the stored path.
type DiskStore struct {
	Dir      string
	MaxBytes int64
}

func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	if err := os.MkdirAll(filepath.Join(dir, proofDir), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{Dir: dir, MaxBytes: maxBytes}, nil
}

// AllowedTypes are the proof formats accepted.  SVG is left out because it
// can carry script.
var AllowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "application/pdf"}

func allowed(m *mimetype.MIME) bool {
	for _, t := range AllowedTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

// Save stores r and returns a reference of the form proofs/<id><ext>.
func (s *DiskStore) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %q: %w", name, err)
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if int64(len(data)) > s.MaxBytes {
		return "", ErrTooLarge
	}
	m := mimetype.Detect(data)
	if !allowed(m) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, m.String())
	}

	ref := filepath.ToSlash(filepath.Join(proofDir, uuid.NewString()+m.Extension()))
	tmp, err := os.CreateTemp(filepath.Join(s.Dir, proofDir), ".upload-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, filepath.FromSlash(ref))); err != nil {
		return "", err
	}
	return ref, nil
}

// Open returns the stored file behind ref.
func (s *DiskStore) Open(ref string) (*os.File, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if !strings.HasPrefix(clean, proofDir+string(filepath.Separator)) {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.Dir, clean))
}
