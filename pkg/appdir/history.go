package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultHistoryMax is the line cap used when none is configured.
const DefaultHistoryMax = 500

// History is the line-oriented command history. It is not safe for
// concurrent use.
type History struct {
	path    string
	limit   int
	entries []string
}

// History returns the history file of d capped at limit lines. A limit of
// zero or less selects DefaultHistoryMax.
func (d *Dir) History(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryMax
	}
	return &History{path: d.HistoryPath(), limit: limit}
}

// Load reads the history file. A missing file is an empty history.
func (h *History) Load() error {
	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		h.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("appdir: failed to read history: %w", err)
	}

	h.entries = h.entries[:0]
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			h.entries = append(h.entries, line)
		}
	}
	h.trim()
	return nil
}

// Add appends entry. An entry equal to the current last entry is dropped,
// and the oldest entries are discarded beyond the cap. Embedded line breaks
// are folded to spaces so one entry stays one line.
func (h *History) Add(entry string) {
	entry = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(entry))
	if entry == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == entry {
		return
	}
	h.entries = append(h.entries, entry)
	h.trim()
}

// Entries returns the entries oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Save writes the entries newline-joined with owner-only permissions.
func (h *History) Save() error {
	if err := os.MkdirAll(filepath.Dir(h.path), DirMode); err != nil {
		return fmt.Errorf("appdir: failed to create directory: %w", err)
	}
	return writeFileAtomic(h.path, []byte(strings.Join(h.entries, "\n")))
}

func (h *History) trim() {
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append(h.entries[:0], h.entries[over:]...)
	}
}
