package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace hands out uniquely named temp files for fragments and uploads
type Workspace struct {
	dir    string
	logger *slog.Logger
}

// NewWorkspace creates the temp directory if needed
func NewWorkspace(dir string, logger *slog.Logger) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("temp directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", dir, err)
	}
	return &Workspace{dir: dir, logger: logger}, nil
}

// Dir returns the workspace directory
func (w *Workspace) Dir() string {
	return w.dir
}

// FragmentPath returns a fresh path for one streamed fragment of sessionID
func (w *Workspace) FragmentPath(sessionID string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.webm", sessionID, uuid.NewString()))
}

// UploadPath returns a fresh path for an uploaded file, keeping its extension
func (w *Workspace) UploadPath(filename string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename)))
}

// WriteFile persists data at path
func (w *Workspace) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Save copies r into path and returns the number of bytes written
func (w *Workspace) Save(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return n, fmt.Errorf("failed to write %s: %w", path, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return n, nil
}

// Remove deletes every path that exists; missing files are not an error
func (w *Workspace) Remove(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Failed to remove temp file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload"
	}
	return name
}
