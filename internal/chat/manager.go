package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/suPer8Hu/personallm/internal/ai"
	"github.com/suPer8Hu/personallm/internal/store"
)

// Manager hands out sessions keyed by (user, conversation, branch) so that
// repeated requests for the same client context hit the same streaming
// guard. A fresh submit with no conversation yet always gets a new session.
type Manager struct {
	st     store.Store
	reg    *ai.Registry
	titles TitleQueue
	log    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(st store.Store, reg *ai.Registry, titles TitleQueue, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		st:       st,
		reg:      reg,
		titles:   titles,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for cfg's client context, creating one
// on first use. Collaborators in cfg are ignored; the manager's own are
// injected.
func (m *Manager) Session(cfg Config) *Session {
	cfg.Store = m.st
	cfg.Registry = m.reg
	cfg.Titles = m.titles
	cfg.Log = m.log

	if cfg.ConversationID == "" {
		// Nothing to key on yet; the caller owns this session's lifetime.
		return NewSession(cfg)
	}

	key := cfg.UserID + "|" + cfg.ConversationID + "|" + cfg.BranchID
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := NewSession(cfg)
	m.sessions[key] = s
	return s
}

// Adopt registers a session under its post-bootstrap context so later
// requests for the new conversation land on the same guard.
func (m *Manager) Adopt(s *Session, userID string) {
	convID, branchID := s.ConversationID(), s.BranchID()
	if convID == "" {
		return
	}
	key := userID + "|" + convID + "|" + branchID
	m.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()
}

// Drop forgets the session for a client context, stopping any in-flight
// generation first.
func (m *Manager) Drop(userID, conversationID, branchID string) {
	key := userID + "|" + conversationID + "|" + branchID
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}
