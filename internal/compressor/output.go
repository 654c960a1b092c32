package compressor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// ResolveDestination computes where a compressed item is written: the output
// directory joined with the item's base name, else the source path itself.
func ResolveDestination(req Request, settings Settings) (string, error) {
	if settings.OutputDirectory != "" {
		name, err := sanitizeName(req.Name)
		if err != nil {
			return "", err
		}
		return filepath.Join(settings.OutputDirectory, name), nil
	}
	if req.SourcePath != "" {
		return req.SourcePath, nil
	}
	return "", fmt.Errorf("%w: no output directory and no source path", ErrNoDestination)
}

// sanitizeName keeps only the final element of name so that it cannot
// escape the output directory.
func sanitizeName(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: name contains NUL", ErrNoDestination)
	}
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: unusable file name %q", ErrNoDestination, name)
	}
	return base, nil
}

// writeAtomic writes data through a temporary file in the destination's
// directory and renames it over path. The previous file at path is left
// untouched when anything fails.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrWrite, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}
