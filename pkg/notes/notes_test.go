package notes

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/forest6511/vaultkeeper/pkg/crypto"
	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

func newTestStore(t *testing.T) (*Store, *worker.Worker) {
	t.Helper()
	ctx := context.Background()
	conn, err := store.Open(filepath.Join(t.TempDir(), "store.db"), &store.Options{
		KDF: crypto.Params{Time: 1, Memory: 1024, Threads: 1},
	})
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	w := worker.New(conn, nil)
	t.Cleanup(func() { w.Close() })

	if err := worker.Exec(ctx, w, func(ctx context.Context, c *store.Conn) error {
		return c.Key(ctx, "hunter2", true)
	}); err != nil {
		t.Fatalf("keying store failed: %v", err)
	}
	s, err := Open(ctx, w)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, w
}

func titles(sums []Summary) []string {
	out := make([]string, 0, len(sums))
	for _, s := range sums {
		out = append(out, s.Title)
	}
	sort.Strings(out)
	return out
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	in := &Note{Title: "wifi", Body: "correct horse", Tags: []string{"home", "net"}}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "wifi")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Body != in.Body || !reflect.DeepEqual(got.Tags, in.Tags) {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("timestamps = %v, %v", got.CreatedAt, got.UpdatedAt)
	}

	// Replace keeps one row.
	if err := s.Put(ctx, &Note{Title: "wifi", Body: "new"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "wifi")
	if got.Body != "new" || got.Tags != nil {
		t.Errorf("after replace: %+v", got)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestBodyIsSealedAtRest(t *testing.T) {
	ctx := context.Background()
	s, w := newTestStore(t)

	if err := s.Put(ctx, &Note{Title: "t", Body: "plaintext-marker"}); err != nil {
		t.Fatal(err)
	}
	raw, err := worker.Do(ctx, w, func(ctx context.Context, c *store.Conn) ([]byte, error) {
		var b []byte
		err := c.QueryRowContext(ctx, `SELECT body FROM notes WHERE title = 't'`).Scan(&b)
		return b, err
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "plaintext-marker") {
		t.Error("body stored in plaintext")
	}
}

func TestGetDeleteMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Get: err = %v, want ErrNoteNotFound", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Delete: err = %v, want ErrNoteNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_ = s.Put(ctx, &Note{Title: "a", Body: "1"})
	_ = s.Put(ctx, &Note{Title: "b", Body: "2"})
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(list); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("List() = %v", got)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, n := range []*Note{
		{Title: "AWS root", Body: "secret-body", Tags: []string{"cloud"}},
		{Title: "GitHub token", Body: "x", Tags: []string{"dev"}},
		{Title: "home wifi", Body: "y", Tags: []string{"home"}},
		{Title: "100% done", Body: "z"},
	} {
		if err := s.Put(ctx, n); err != nil {
			t.Fatalf("Put(%s) failed: %v", n.Title, err)
		}
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"aws", []string{"AWS root"}},
		{"CLOUD", []string{"AWS root"}},
		{"o", []string{"100% done", "AWS root", "GitHub token", "home wifi"}},
		{"%", []string{"100% done"}},
		{"secret-body", []string{}},
		{"_", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if g := titles(got); !reflect.DeepEqual(g, tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, g, tt.want)
			}
		})
	}

	if _, err := s.Search(ctx, "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("blank query: err = %v, want ErrEmptyQuery", err)
	}
}

func TestPutValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	tooManyTags := make([]string, MaxTagCount+1)
	for i := range tooManyTags {
		tooManyTags[i] = "t"
	}

	tests := []struct {
		name string
		note *Note
		want error
	}{
		{"empty title", &Note{Title: " "}, ErrTitleInvalid},
		{"multiline title", &Note{Title: "a\nb"}, ErrTitleInvalid},
		{"long title", &Note{Title: strings.Repeat("x", MaxTitleLength+1)}, ErrTitleInvalid},
		{"large body", &Note{Title: "x", Body: strings.Repeat("x", MaxBodySize+1)}, ErrBodyTooLarge},
		{"too many tags", &Note{Title: "x", Tags: tooManyTags}, ErrTooManyTags},
		{"bad tag", &Note{Title: "x", Tags: []string{"has space"}}, ErrTagInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Put(ctx, tt.note); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenRequiresKey(t *testing.T) {
	conn, err := store.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	w := worker.New(conn, nil)
	defer w.Close()

	if _, err := Open(context.Background(), w); !errors.Is(err, store.ErrNotKeyed) {
		t.Errorf("err = %v, want store.ErrNotKeyed", err)
	}
}
