package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/vaultkeeper/pkg/notes"
	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// StoreStatusInput represents input for store_status tool.
type StoreStatusInput struct{}

// StoreStatusOutput represents output for store_status tool.
type StoreStatusOutput struct {
	State         string `json:"state"`
	StorePath     string `json:"store_path"`
	SchemaVersion int    `json:"schema_version"`
	Notes         int    `json:"notes"`
}

// NoteListInput represents input for note_list tool.
type NoteListInput struct {
	Tag string `json:"tag,omitempty"`
}

// NoteListOutput represents output for note_list and note_search tools.
type NoteListOutput struct {
	Notes []NoteInfo `json:"notes"`
}

// NoteInfo represents metadata for a note (no body).
type NoteInfo struct {
	Title     string   `json:"title"`
	Tags      []string `json:"tags,omitempty"`
	UpdatedAt string   `json:"updated_at"`
}

// NoteSearchInput represents input for note_search tool.
type NoteSearchInput struct {
	Query string `json:"query"`
}

// NoteGetMaskedInput represents input for note_get_masked tool.
type NoteGetMaskedInput struct {
	Title string `json:"title"`
}

// NoteGetMaskedOutput represents output for note_get_masked tool.
type NoteGetMaskedOutput struct {
	Title      string `json:"title"`
	MaskedBody string `json:"masked_body"`
	BodyLength int    `json:"body_length"`
}

func (s *Server) handleStoreStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StoreStatusInput) (*mcp.CallToolResult, StoreStatusOutput, error) {
	state, _ := s.session.State()
	out := StoreStatusOutput{State: state.String(), StorePath: s.session.StorePath()}

	version, err := worker.Do(ctx, s.worker, func(ctx context.Context, conn *store.Conn) (int, error) {
		return conn.SchemaVersion(ctx)
	})
	if err != nil {
		return nil, StoreStatusOutput{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	out.SchemaVersion = version

	count, err := s.notes.Count(ctx)
	if err != nil {
		return nil, StoreStatusOutput{}, fmt.Errorf("failed to count notes: %w", err)
	}
	out.Notes = count
	return nil, out, nil
}

func (s *Server) handleNoteList(ctx context.Context, _ *mcp.CallToolRequest, input NoteListInput) (*mcp.CallToolResult, NoteListOutput, error) {
	list, err := s.notes.List(ctx)
	if err != nil {
		return nil, NoteListOutput{}, fmt.Errorf("failed to list notes: %w", err)
	}

	out := NoteListOutput{Notes: make([]NoteInfo, 0, len(list))}
	for _, n := range list {
		if input.Tag != "" && !hasTag(n.Tags, input.Tag) {
			continue
		}
		out.Notes = append(out.Notes, toInfo(n))
	}
	return nil, out, nil
}

func (s *Server) handleNoteSearch(ctx context.Context, _ *mcp.CallToolRequest, input NoteSearchInput) (*mcp.CallToolResult, NoteListOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, NoteListOutput{}, errors.New("query is required")
	}
	list, err := s.notes.Search(ctx, input.Query)
	if err != nil {
		return nil, NoteListOutput{}, fmt.Errorf("failed to search notes: %w", err)
	}

	out := NoteListOutput{Notes: make([]NoteInfo, 0, len(list))}
	for _, n := range list {
		out.Notes = append(out.Notes, toInfo(n))
	}
	return nil, out, nil
}

func (s *Server) handleNoteGetMasked(ctx context.Context, _ *mcp.CallToolRequest, input NoteGetMaskedInput) (*mcp.CallToolResult, NoteGetMaskedOutput, error) {
	if input.Title == "" {
		return nil, NoteGetMaskedOutput{}, errors.New("title is required")
	}
	n, err := s.notes.Get(ctx, input.Title)
	if err != nil {
		if errors.Is(err, notes.ErrNoteNotFound) {
			return nil, NoteGetMaskedOutput{}, fmt.Errorf("note not found: %s", input.Title)
		}
		return nil, NoteGetMaskedOutput{}, fmt.Errorf("failed to get note: %w", err)
	}

	body := []rune(n.Body)
	return nil, NoteGetMaskedOutput{
		Title:      n.Title,
		MaskedBody: maskValue(body),
		BodyLength: len(body),
	}, nil
}

// maskValue hides all but a short suffix of value. Short values are fully
// masked.
func maskValue(value []rune) string {
	length := len(value)
	switch {
	case length == 0:
		return ""
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(value[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(value[length-4:])
	}
}

func toInfo(n notes.Summary) NoteInfo {
	return NoteInfo{Title: n.Title, Tags: n.Tags, UpdatedAt: n.UpdatedAt.UTC().Format(time.RFC3339)}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
