package conversation

import (
	"sync"

	"github.com/set-night/trackerbot/internal/domain"
)

// Session is the per-user dialog state.
type Session struct {
	State       State
	Title       string
	Description string
	Attachments []domain.AttachmentRef
	IssueKey    string
	// Albums holds media group ids buffered for the current draft.
	Albums map[string]bool
	// LastPrompt is the id of the last message carrying an inline keyboard.
	LastPrompt int

	// commentAlbum is the media group whose first file was posted as a
	// comment. The rest of that album is not posted.
	commentAlbum         string
	commentAlbumNotified bool
}

// reset drops the draft but keeps the prompt handle so it can be cleaned up.
func (s *Session) reset() {
	*s = Session{
		LastPrompt:           s.LastPrompt,
		commentAlbum:         s.commentAlbum,
		commentAlbumNotified: s.commentAlbumNotified,
	}
}

type userSession struct {
	mu      sync.Mutex
	session Session
}

// SessionStore keeps sessions in memory. Each session is locked while an
// update for its user is being handled.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*userSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*userSession)}
}

// Acquire locks the user's session and returns it with its unlock func.
func (s *SessionStore) Acquire(userID int64) (*Session, func()) {
	s.mu.Lock()
	us, ok := s.sessions[userID]
	if !ok {
		us = &userSession{}
		s.sessions[userID] = us
	}
	s.mu.Unlock()

	us.mu.Lock()
	return &us.session, us.mu.Unlock
}

// Snapshot returns a copy of the user's session.
func (s *SessionStore) Snapshot(userID int64) Session {
	sess, unlock := s.Acquire(userID)
	defer unlock()
	cp := *sess
	cp.Attachments = append([]domain.AttachmentRef(nil), sess.Attachments...)
	return cp
}
