// Package appdir resolves the per-user application directory and the small
// plaintext state files kept next to the store.
package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Name is the directory created under the user config directory.
	Name = "vaultkeeper"

	StoreFile       = "store.db"
	UpdateCheckFile = "update-check"
	HistoryFile     = "history"
	ConfigFile      = "config.yaml"

	DirMode  os.FileMode = 0o700
	FileMode os.FileMode = 0o600
)

// ErrMalformedUpdateCheck is returned when the update-check file does not
// hold a decimal epoch.
var ErrMalformedUpdateCheck = errors.New("appdir: malformed update-check file")

// Dir is an application directory.
type Dir struct {
	root string
}

// New returns the Dir rooted at root. An empty root selects Default.
func New(root string) (*Dir, error) {
	if root == "" {
		def, err := Default()
		if err != nil {
			return nil, err
		}
		root = def
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("appdir: invalid directory %q: %w", root, err)
	}
	return &Dir{root: abs}, nil
}

// Default returns <user config dir>/vaultkeeper.
func Default() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appdir: failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, Name), nil
}

// Ensure creates the directory with owner-only permissions.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.root, DirMode); err != nil {
		return fmt.Errorf("appdir: failed to create %s: %w", d.root, err)
	}
	return nil
}

func (d *Dir) Root() string            { return d.root }
func (d *Dir) StorePath() string       { return filepath.Join(d.root, StoreFile) }
func (d *Dir) UpdateCheckPath() string { return filepath.Join(d.root, UpdateCheckFile) }
func (d *Dir) HistoryPath() string     { return filepath.Join(d.root, HistoryFile) }
func (d *Dir) ConfigPath() string      { return filepath.Join(d.root, ConfigFile) }

// LastUpdateCheck returns the time recorded by RecordUpdateCheck, or the
// zero time when nothing has been recorded yet.
func (d *Dir) LastUpdateCheck() (time.Time, error) {
	data, err := os.ReadFile(d.UpdateCheckPath())
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("appdir: failed to read update-check file: %w", err)
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedUpdateCheck, err)
	}
	return time.Unix(secs, 0), nil
}

// RecordUpdateCheck stores t as decimal seconds since the epoch.
func (d *Dir) RecordUpdateCheck(t time.Time) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	return writeFileAtomic(d.UpdateCheckPath(), []byte(strconv.FormatInt(t.Unix(), 10)))
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("appdir: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("appdir: failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("appdir: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("appdir: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("appdir: failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
