package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/forest6511/vaultkeeper/pkg/session"
)

// Prompter reads passwords from a terminal without echo, or line by line
// when input is piped. Prompts and messages go to Out.
type Prompter struct {
	In  *os.File
	Out io.Writer
}

// NewPrompter returns a Prompter on stdin and stderr.
func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

// PromptPassword implements session.Prompter.
func (p *Prompter) PromptPassword(ctx context.Context) (string, error) {
	return p.read(ctx, "Enter password: ")
}

// PromptNewPassword implements session.Prompter.
func (p *Prompter) PromptNewPassword(ctx context.Context) (string, string, error) {
	pw, err := p.read(ctx, "Enter new password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := p.read(ctx, "Confirm password: ")
	if err != nil {
		return "", "", err
	}
	return pw, confirm, nil
}

// Rejected implements session.Prompter.
func (p *Prompter) Rejected(err error) {
	switch {
	case errors.Is(err, session.ErrEmptyPassword):
		fmt.Fprintln(p.Out, "Password must not be empty.")
	case errors.Is(err, session.ErrPasswordMismatch):
		fmt.Fprintln(p.Out, "Passwords do not match.")
	case errors.Is(err, session.ErrWrongPassword):
		fmt.Fprintln(p.Out, "Wrong password.")
	default:
		fmt.Fprintf(p.Out, "Error: %v\n", err)
	}
}

// Prompt reads one answer with label, hiding input on a terminal.
func (p *Prompter) Prompt(ctx context.Context, label string) (string, error) {
	return p.read(ctx, label)
}

func (p *Prompter) read(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.Out, label)

	fd := int(p.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := readLine(p.In)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r"), nil
}

// readLine reads up to a newline one byte at a time so that nothing past the
// line is consumed from r.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			return sb.String(), err
		}
	}
}
