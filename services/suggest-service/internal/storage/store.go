package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrUnsupportedType = errors.New("file type not supported. Allowed: .txt, .md")
	ErrNoFilename      = errors.New("no file provided")
)

// Document is a named plain-text document.
type Document struct {
	Name    string
	Content string
}

// Store persists documents for one corpus. Saving a name that already
// exists replaces it.
type Store interface {
	Save(ctx context.Context, name string, content []byte) error
	List(ctx context.Context) ([]Document, error)
}

// CleanName reduces an uploaded filename to its base name and checks that it
// has a .txt or .md extension (any case).
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", ErrNoFilename
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return "", ErrNoFilename
	}
	if !Supported(base) {
		return "", fmt.Errorf("%q: %w", base, ErrUnsupportedType)
	}
	return base, nil
}

func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".md":
		return true
	default:
		return false
	}
}
