// Package history owns conversation sessions: append-only turn storage
// and the bounded message window rendered for completion requests.
package history

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verasoft/docchat/internal/groq"
	"github.com/verasoft/docchat/internal/storage"
)

const defaultWindow = 20

// Store is the session persistence the manager needs.
type Store interface {
	EnsureSession(id string, now time.Time) error
	AppendMessage(m storage.Message) error
	RecentMessages(sessionID string, limit int) ([]storage.Message, error)
	ListSessions() ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	DeleteSession(id string) error
}

// Manager maintains per-session ordered message sequences. Turns on the
// same session serialize through a per-session lock; different sessions
// never block each other.
type Manager struct {
	store  Store
	window int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager rendering at most window messages per
// completion request. window <= 0 selects the default of 20.
func NewManager(store Store, window int) *Manager {
	if window <= 0 {
		window = defaultWindow
	}
	return &Manager{
		store:  store,
		window: window,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock acquires the per-session lock and returns its release function.
// Callers hold it for a whole turn so concurrent requests against one
// session cannot interleave their appends.
func (m *Manager) Lock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// EnsureSession returns a usable session id, generating a fresh
// collision-resistant identifier when none is supplied, and guarantees
// the session row exists.
func (m *Manager) EnsureSession(id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if err := m.store.EnsureSession(id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("ensuring session %s: %w", id, err)
	}
	return id, nil
}

// AppendTurn persists one turn at the current time.
func (m *Manager) AppendTurn(sessionID, role, content string) (storage.Message, error) {
	msg := storage.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.AppendMessage(msg); err != nil {
		return storage.Message{}, fmt.Errorf("appending %s turn: %w", role, err)
	}
	return msg, nil
}

// Render builds the completion message list: a synthesized system message
// carrying the retrieved context (or the decline instruction when context
// is empty) followed by at most the window most recent turns in ascending
// chronological order.
func (m *Manager) Render(sessionID, context, declineReply string) ([]groq.Message, error) {
	recent, err := m.store.RecentMessages(sessionID, m.window)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}

	// The store returns ascending order already; the stable re-sort
	// enforces it regardless of backend and keeps insertion order on ties.
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.Before(recent[j].CreatedAt)
	})

	msgs := make([]groq.Message, 0, len(recent)+1)
	msgs = append(msgs, groq.Message{Role: "system", Content: systemPrompt(context, declineReply)})
	for _, r := range recent {
		msgs = append(msgs, groq.Message{Role: r.Role, Content: r.Content})
	}
	return msgs, nil
}

// Sessions lists all sessions, most recently active first.
func (m *Manager) Sessions() ([]storage.Session, error) {
	return m.store.ListSessions()
}

// Session returns one session with its full message history.
func (m *Manager) Session(id string) (storage.Session, error) {
	return m.store.GetSession(id)
}

// DeleteSession removes a session and all its messages.
func (m *Manager) DeleteSession(id string) error {
	return m.store.DeleteSession(id)
}
