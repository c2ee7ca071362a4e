package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forest6511/vaultkeeper/pkg/session"
)

// pipedPrompter feeds input through a regular file, which is never a
// terminal.
func pipedPrompter(t *testing.T, input string) (*Prompter, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	if err := os.WriteFile(path, []byte(input), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	var out bytes.Buffer
	return &Prompter{In: f, Out: &out}, &out
}

func TestPromptNewPasswordPiped(t *testing.T) {
	p, out := pipedPrompter(t, "hunter2\r\nhunter2\n")

	pw, confirm, err := p.PromptNewPassword(context.Background())
	if err != nil {
		t.Fatalf("PromptNewPassword failed: %v", err)
	}
	if pw != "hunter2" || confirm != "hunter2" {
		t.Errorf("got %q, %q", pw, confirm)
	}
	if !strings.Contains(out.String(), "Confirm password: ") {
		t.Errorf("prompts = %q", out.String())
	}
}

func TestPromptPasswordWithoutTrailingNewline(t *testing.T) {
	p, _ := pipedPrompter(t, "last")
	pw, err := p.PromptPassword(context.Background())
	if err != nil || pw != "last" {
		t.Errorf("PromptPassword() = %q, %v", pw, err)
	}
	if _, err := p.PromptPassword(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("read past input: err = %v, want EOF", err)
	}
}

func TestPromptCancelled(t *testing.T) {
	p, out := pipedPrompter(t, "pw\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.PromptPassword(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if out.Len() != 0 {
		t.Errorf("prompt printed after cancel: %q", out.String())
	}
}

func TestRejectedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{session.ErrEmptyPassword, "must not be empty"},
		{session.ErrPasswordMismatch, "do not match"},
		{session.ErrWrongPassword, "Wrong password"},
		{errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := &Prompter{Out: &out}
		p.Rejected(tt.err)
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("Rejected(%v) wrote %q, want %q", tt.err, out.String(), tt.want)
		}
	}
}
