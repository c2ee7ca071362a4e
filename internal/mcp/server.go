// Package mcp serves read-only note metadata over the Model Context
// Protocol. It is one more producer on the store worker: every tool call is
// a command queued behind whatever the CLI or other callers submitted.
// Note bodies never leave the process in clear text.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/forest6511/vaultkeeper/pkg/notes"
	"github.com/forest6511/vaultkeeper/pkg/session"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// Server is the MCP server for an unlocked store.
type Server struct {
	server  *mcp.Server
	notes   *notes.Store
	session *session.Controller
	worker  *worker.Worker
	log     logrus.FieldLogger
}

// ServerOptions wires the server to an unlocked session.
type ServerOptions struct {
	Notes   *notes.Store
	Session *session.Controller
	Worker  *worker.Worker
	Version string
	Logger  logrus.FieldLogger
}

// ErrNotUnlocked is returned by NewServer when the session is not unlocked.
var ErrNotUnlocked = errors.New("mcp: store must be unlocked before serving")

// NewServer creates a new MCP server instance.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Session == nil || opts.Notes == nil || opts.Worker == nil {
		return nil, errors.New("mcp: notes, session and worker are required")
	}
	if state, _ := opts.Session.State(); state != session.StateUnlocked {
		return nil, ErrNotUnlocked
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		server:  mcp.NewServer(&mcp.Implementation{Name: "vaultkeeper", Version: version}, nil),
		notes:   opts.Notes,
		session: opts.Session,
		worker:  opts.Worker,
		log:     log.WithField("component", "mcp"),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "store_status",
		Description: "Report whether the store is unlocked, its schema version and how many notes it holds.",
	}, s.handleStoreStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "note_list",
		Description: "List note titles with tags and last update time, optionally filtered by tag. Does NOT return note bodies.",
	}, s.handleNoteList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "note_search",
		Description: "Search note titles and tags (case-insensitive substring). Bodies are neither searched nor returned.",
	}, s.handleNoteSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "note_get_masked",
		Description: "Get a masked version of a note body (e.g., '****WXYZ') and its length, to check a note without exposing it.",
	}, s.handleNoteGetMasked)
}

// Run serves over stdio until ctx is cancelled or the store worker stops.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.worker.Done():
			s.log.WithError(s.worker.Err()).Error("store worker stopped, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &mcp.StdioTransport{})
	if werr := s.worker.Err(); werr != nil {
		return fmt.Errorf("%w: %v", worker.ErrWorkerUnavailable, werr)
	}
	return err
}
