package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

func TestNewPaths(t *testing.T) {
	root := t.TempDir()
	d, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"store", d.StorePath(), filepath.Join(root, "store.db")},
		{"update-check", d.UpdateCheckPath(), filepath.Join(root, "update-check")},
		{"history", d.HistoryPath(), filepath.Join(root, "history")},
		{"config", d.ConfigPath(), filepath.Join(root, "config.yaml")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnsurePermissions(t *testing.T) {
	d, _ := New(filepath.Join(t.TempDir(), "app"))
	if err := d.Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	info, err := os.Stat(d.Root())
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != DirMode {
		t.Errorf("dir mode = %o, want %o", info.Mode().Perm(), DirMode)
	}
}

func TestUpdateCheck(t *testing.T) {
	d, _ := New(filepath.Join(t.TempDir(), "app"))

	got, err := d.LastUpdateCheck()
	if err != nil {
		t.Fatalf("LastUpdateCheck on missing file: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("LastUpdateCheck() = %v, want zero time", got)
	}

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := d.RecordUpdateCheck(at); err != nil {
		t.Fatalf("RecordUpdateCheck failed: %v", err)
	}
	data, err := os.ReadFile(d.UpdateCheckPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != fmt.Sprint(at.Unix()) {
		t.Errorf("file content = %q, want %d", data, at.Unix())
	}

	got, err = d.LastUpdateCheck()
	if err != nil {
		t.Fatalf("LastUpdateCheck failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("LastUpdateCheck() = %v, want %v", got, at)
	}
}

func TestUpdateCheckMalformed(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := os.WriteFile(d.UpdateCheckPath(), []byte("yesterday"), FileMode); err != nil {
		t.Fatal(err)
	}
	if _, err := d.LastUpdateCheck(); !errors.Is(err, ErrMalformedUpdateCheck) {
		t.Errorf("err = %v, want ErrMalformedUpdateCheck", err)
	}
}

func TestUpdateCheckTrailingNewline(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := os.WriteFile(d.UpdateCheckPath(), []byte("1700000000\n"), FileMode); err != nil {
		t.Fatal(err)
	}
	got, err := d.LastUpdateCheck()
	if err != nil {
		t.Fatal(err)
	}
	if got.Unix() != 1700000000 {
		t.Errorf("LastUpdateCheck() = %d", got.Unix())
	}
}

func TestHistoryAdd(t *testing.T) {
	d, _ := New(t.TempDir())

	tests := []struct {
		name  string
		limit int
		add   []string
		want  []string
	}{
		{
			name:  "dedupes trailing entry",
			limit: 10,
			add:   []string{"a", "b", "b", "b"},
			want:  []string{"a", "b"},
		},
		{
			name:  "keeps non-adjacent repeats",
			limit: 10,
			add:   []string{"a", "b", "a"},
			want:  []string{"a", "b", "a"},
		},
		{
			name:  "caps to newest",
			limit: 3,
			add:   []string{"1", "2", "3", "4", "5"},
			want:  []string{"3", "4", "5"},
		},
		{
			name:  "skips blank and folds newlines",
			limit: 10,
			add:   []string{"", "  ", "note\nput"},
			want:  []string{"note put"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := d.History(tt.limit)
			for _, e := range tt.add {
				h.Add(e)
			}
			if got := h.Entries(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Entries() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHistorySaveLoad(t *testing.T) {
	d, _ := New(filepath.Join(t.TempDir(), "app"))

	h := d.History(3)
	if err := h.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	for _, e := range []string{"init", "unlock", "note list", "note get x"} {
		h.Add(e)
	}
	if err := h.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(d.HistoryPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "unlock\nnote list\nnote get x" {
		t.Errorf("history file = %q", data)
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(d.HistoryPath())
		if info.Mode().Perm() != FileMode {
			t.Errorf("history mode = %o, want %o", info.Mode().Perm(), FileMode)
		}
	}

	// A smaller cap on reload keeps the newest lines.
	h2 := d.History(2)
	if err := h2.Load(); err != nil {
		t.Fatal(err)
	}
	want := []string{"note list", "note get x"}
	if got := h2.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}

	h2.Add("note get x")
	if got := h2.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("repeat of last loaded entry was added: %q", got)
	}
}
