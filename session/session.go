// Package session keeps the conversation history of chat sessions.
//
// A Manager maps session ids to ordered message histories and serializes the
// turns of each session: at most one Turn per id is open at a time, sessions
// with different ids do not coordinate.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrTurnClosed is returned when committing a turn already committed or released.
var ErrTurnClosed = errors.New("turn already closed")

// Role is the author of a message.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	Tool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	// Invalid is set when the arguments sent by the model could not be
	// decoded. The call is answered with a validation error.
	Invalid string `json:"invalid,omitempty"`
}

// ToolResult is the payload returned for a ToolCall, a success payload or an
// {"error": ...} object.
type ToolResult struct {
	ID      string         `json:"id,omitempty"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

// Message is one entry of a session history.
//
// An assistant message carries either Text or ToolCalls, a tool message carries
// the ToolResults of the preceding assistant ToolCalls, in the same order.
type Message struct {
	Role        Role         `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	At          time.Time    `json:"at"`
}

// Session is a snapshot of one conversation.
type Session struct {
	ID         string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Turns counts the user messages of the session.
func (s Session) Turns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == User {
			n++
		}
	}
	return n
}

type entry struct {
	lock    *semaphore.Weighted
	session Session
}

// Manager is an in-memory registry of sessions, safe for concurrent use.
// Entries are never evicted, only Clear removes them.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager returns an empty registry. A nil logger discards logs.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		entries: make(map[string]*entry),
		logger:  logger.Named("session"),
		now:     time.Now,
	}
}

// lookup returns the entry of id, creating it if create is set.
func (m *Manager) lookup(id string, create bool) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok && create {
		now := m.now()
		e = &entry{
			lock:    semaphore.NewWeighted(1),
			session: Session{ID: id, Messages: []Message{}, CreatedAt: now, LastUsedAt: now},
		}
		m.entries[id] = e
		m.logger.Debug("session created", zap.String("session_id", id))
	}
	return e
}

// acquire locks the live entry of id. It waits for the current turn of the
// session, if any, or until ctx is done.
func (m *Manager) acquire(ctx context.Context, id string, create bool) (*entry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	for {
		e := m.lookup(id, create)
		if e == nil {
			return nil, nil
		}
		if err := e.lock.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		m.mu.Lock()
		live := m.entries[id] == e
		m.mu.Unlock()
		if live {
			return e, nil
		}
		// cleared while waiting.
		e.lock.Release(1)
	}
}

// Begin opens a turn on session id, creating the session on first use. It
// blocks while another turn of the same session is open.
func (m *Manager) Begin(ctx context.Context, id string) (*Turn, error) {
	e, err := m.acquire(ctx, id, true)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	history := slices.Clone(e.session.Messages)
	m.mu.Unlock()
	return &Turn{m: m, e: e, id: id, history: history}, nil
}

// Clear removes session id. It waits for the open turn of the session to end.
// Clearing an unknown session is not an error.
func (m *Manager) Clear(ctx context.Context, id string) error {
	e, err := m.acquire(ctx, id, false)
	if err != nil || e == nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	e.lock.Release(1)
	m.logger.Info("session cleared", zap.String("session_id", id))
	return nil
}

// Get returns a snapshot of session id.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Session{}, false
	}
	s := e.session
	s.Messages = slices.Clone(s.Messages)
	return s, true
}

// IDs returns the ids of the live sessions, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Turn is the exclusive right to append one turn to a session. It must end
// with exactly one of Commit or Release.
type Turn struct {
	m       *Manager
	e       *entry
	id      string
	history []Message
	once    sync.Once
}

// ID is the session id.
func (t *Turn) ID() string { return t.id }

// History is the session history when the turn began.
func (t *Turn) History() []Message { return slices.Clone(t.history) }

// Commit appends messages to the session in one step and ends the turn.
func (t *Turn) Commit(messages ...Message) error {
	committed := false
	t.once.Do(func() {
		t.m.mu.Lock()
		t.e.session.Messages = append(t.e.session.Messages, messages...)
		t.e.session.LastUsedAt = t.m.now()
		t.m.mu.Unlock()
		t.e.lock.Release(1)
		committed = true
	})
	if !committed {
		return ErrTurnClosed
	}
	return nil
}

// Release ends the turn leaving the session unchanged. It is a no-op after
// Commit, so it can be deferred.
func (t *Turn) Release() {
	t.once.Do(func() { t.e.lock.Release(1) })
}
