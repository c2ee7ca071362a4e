// Package logger configures the process logger. Output goes to stderr so
// stdout stays clean for command results and the MCP stdio transport.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	std = newLogger(os.Stderr, logrus.WarnLevel)
)

// Options controls Setup.
type Options struct {
	Level   string    // logrus level name; empty means warn
	Verbose bool      // forces debug regardless of Level
	Output  io.Writer // defaults to os.Stderr
}

// Setup replaces the process logger. The most recent call wins.
func Setup(opts Options) (*logrus.Logger, error) {
	level := logrus.WarnLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	l := newLogger(out, level)
	mu.Lock()
	std = l
	mu.Unlock()
	return l, nil
}

// L returns the process logger.
func L() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return l
}
