// Package store resolves and persists screenshots under the base, current and
// diff directories of a run.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/visual-diff/pkg/config"
	"github.com/devicelab-dev/visual-diff/pkg/core"
)

// Store reads and writes <dir>/<name>.png files for one run configuration.
type Store struct {
	cfg config.Config
}

// New creates a Store for the given configuration.
func New(cfg config.Config) *Store {
	return &Store{cfg: cfg}
}

// Dir returns the directory for an image kind.
func (s *Store) Dir(kind core.ImageKind) string {
	switch kind {
	case core.KindBase:
		return s.cfg.BaseDir
	case core.KindCurrent:
		return s.cfg.CurrentDir
	case core.KindDiff:
		return s.cfg.DiffDir
	}
	return ""
}

// ReportDir returns the directory report documents are written to.
func (s *Store) ReportDir() string {
	return s.cfg.ReportDir()
}

// InitDirectories clears the current and diff directories (and the base
// directory when rebasing), then recreates all three.
func (s *Store) InitDirectories() error {
	toDelete := []string{s.cfg.CurrentDir, s.cfg.DiffDir}
	if s.cfg.Mode == config.ModeRebase {
		toDelete = append(toDelete, s.cfg.BaseDir)
	}

	for _, dir := range toDelete {
		if err := os.RemoveAll(dir); err != nil {
			return core.ErrIO.WithMessagef("clear %s", dir).WithCause(err)
		}
	}

	for _, kind := range core.Kinds {
		dir := s.Dir(kind)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.ErrIO.WithMessagef("create %s", dir).WithCause(err)
		}
	}
	return nil
}

// Path returns <dir>/<name>.png for a validated name.
func (s *Store) Path(name string, kind core.ImageKind) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", core.ErrIO.WithMessagef("unknown image kind %q", kind)
	}
	return filepath.Join(s.Dir(kind), filepath.FromSlash(name)+core.ImageExt), nil
}

// Save writes data as the image for name, creating intermediate directories.
func (s *Store) Save(name string, kind core.ImageKind, data []byte) error {
	path, err := s.Path(name, kind)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.ErrIO.WithMessagef("create directory for %s", path).WithCause(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return core.ErrIO.WithMessagef("write %s", path).WithCause(err)
	}
	return nil
}

// Load reads the image stored for name. A missing file yields core.ErrNotFound;
// callers decide whether that is fatal.
func (s *Store) Load(name string, kind core.ImageKind) ([]byte, error) {
	path, err := s.Path(name, kind)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //#nosec G304 -- name validated above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrNotFound.
				WithMessagef("no %s image for %q", kind, name).
				WithDetails(map[string]interface{}{"path": path}).
				WithCause(err)
		}
		return nil, core.ErrIO.WithMessagef("read %s", path).WithCause(err)
	}
	return data, nil
}

// Exists reports whether an image is stored for name.
func (s *Store) Exists(name string, kind core.ImageKind) bool {
	path, err := s.Path(name, kind)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ValidateName rejects screenshot names that could escape the image directories.
// Names may contain forward slashes to group screenshots in subdirectories.
func ValidateName(name string) error {
	invalid := func(reason string) error {
		return core.ErrInvalidName.WithMessage(fmt.Sprintf("invalid screenshot name %q: %s", name, reason))
	}

	switch {
	case strings.TrimSpace(name) == "":
		return invalid("empty")
	case strings.ContainsRune(name, 0):
		return invalid("contains NUL byte")
	case strings.Contains(name, `\`):
		return invalid("contains backslash")
	case strings.HasPrefix(name, "/") || filepath.IsAbs(name):
		return invalid("absolute path")
	}

	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return invalid("contains path traversal segment")
		}
		if segment == "" || segment == "." {
			return invalid("contains empty path segment")
		}
	}

	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return invalid("not a local path")
	}
	return nil
}
