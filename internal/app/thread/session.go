package thread

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

// Session is the open thread with one counterparty: its messages, the compose
// field and the send rule.
type Session struct {
	viewer         session.Principal
	counterpartyID string
	applicationIDs []string
	loader         *Loader
	messages       chat.MessageRepository
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string

	mu      sync.Mutex
	thread  []chat.Message
	compose string
	state   chat.ThreadState
	// loadSeq numbers loads and restores; only the newest may touch thread.
	loadSeq uint64
}

type SessionConfig struct {
	Viewer         session.Principal
	CounterpartyID string
	ApplicationIDs []string
	Loader         *Loader
	Logger         *slog.Logger
	Now            func() time.Time
	NewID          func() string
}

var (
	ErrSessionNotConfigured = errors.New("thread: session missing dependencies")
	ErrStaleLoad            = errors.New("thread: load superseded by a newer one")
)

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Loader == nil || cfg.Loader.Messages == nil {
		return nil, ErrSessionNotConfigured
	}
	if err := cfg.Viewer.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		viewer:         cfg.Viewer,
		counterpartyID: cfg.CounterpartyID,
		applicationIDs: append([]string(nil), cfg.ApplicationIDs...),
		loader:         cfg.Loader,
		messages:       cfg.Loader.Messages,
		logger:         cfg.Logger,
		now:            cfg.Now,
		newID:          cfg.NewID,
		state:          chat.ThreadAwaitingFirstContact,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Restore seeds the session from a snapshot loaded elsewhere. It supersedes
// any load still in flight.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadSeq++
	s.apply(snap)
}

// Load replaces the thread with a fresh snapshot. Sends still in flight keep
// their temporary entries at the tail. On error the thread is left unchanged.
// A load overtaken by a later Load or Restore returns ErrStaleLoad and leaves
// the thread as the later one set it.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	snap, err := s.loader.Load(ctx, s.viewer, s.applicationIDs)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("thread load failed", "counterparty_id", s.counterpartyID, "error", err)
		}
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		return ErrStaleLoad
	}
	s.apply(snap)
	return nil
}

func (s *Session) apply(snap Snapshot) {
	next := append([]chat.Message(nil), snap.Messages...)
	for _, m := range s.thread {
		if m.Temporary() {
			next = append(next, m)
		}
	}
	s.thread = next
	s.state = snap.State
}

func (s *Session) CounterpartyID() string {
	return s.counterpartyID
}

// Messages returns a copy of the thread, oldest first.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.thread...)
}

// Buckets groups the thread by the viewer's calendar day in loc.
func (s *Session) Buckets(loc *time.Location) []chat.DateBucket {
	return chat.GroupByDate(s.Messages(), s.now(), loc)
}

func (s *Session) State() chat.ThreadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CanSend() bool {
	return s.State().CanSend(s.viewer.Role)
}

func (s *Session) Compose() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose
}

func (s *Session) SetCompose(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compose = text
}

// SendCompose sends the current compose field.
func (s *Session) SendCompose(ctx context.Context) (chat.Message, error) {
	return s.Send(ctx, s.Compose())
}

// Send appends a temporary message, clears the compose field and stores the
// message. On success the temporary entry is replaced in place by the stored
// one; on failure it is removed and the compose field gets raw back.
// A creator may not send before the company wrote first: that case returns
// ErrAwaitingFirstContact without touching state or the store.
func (s *Session) Send(ctx context.Context, raw string) (chat.Message, error) {
	content, err := chat.NormalizeContent(raw)
	if err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	if !s.state.CanSend(s.viewer.Role) {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrAwaitingFirstContact
	}
	appID := s.targetApplication()
	if appID == "" {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrNoApplication
	}
	temp := chat.Message{
		ID:            chat.TempIDPrefix + s.newID(),
		ApplicationID: appID,
		SenderID:      s.viewer.UserID,
		SenderRole:    s.viewer.Role,
		Content:       content,
		CreatedAt:     s.now().UTC(),
	}
	s.thread = append(s.thread, temp)
	s.compose = ""
	s.mu.Unlock()

	stored, err := s.messages.CreateMessage(ctx, chat.NewMessage{
		ApplicationID: appID,
		SenderID:      s.viewer.UserID,
		SenderRole:    s.viewer.Role,
		Content:       content,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.remove(temp.ID)
		s.compose = raw
		if s.logger != nil {
			s.logger.Warn("send message failed", "application_id", appID, "user_id", s.viewer.UserID, "error", err)
		}
		return chat.Message{}, err
	}
	s.confirm(temp.ID, stored)
	return stored, nil
}

// targetApplication picks the application of the newest stored message, or
// the first application when the thread is empty.
func (s *Session) targetApplication() string {
	for i := len(s.thread) - 1; i >= 0; i-- {
		if m := s.thread[i]; !m.Temporary() && m.ApplicationID != "" {
			return m.ApplicationID
		}
	}
	if len(s.applicationIDs) > 0 {
		return s.applicationIDs[0]
	}
	return ""
}

func (s *Session) remove(id string) {
	for i, m := range s.thread {
		if m.ID == id {
			s.thread = append(s.thread[:i], s.thread[i+1:]...)
			return
		}
	}
}

// confirm swaps the temporary entry for stored. When a reload already brought
// stored in, the temporary entry is just dropped.
func (s *Session) confirm(tempID string, stored chat.Message) {
	for _, m := range s.thread {
		if m.ID == stored.ID {
			s.remove(tempID)
			return
		}
	}
	for i, m := range s.thread {
		if m.ID == tempID {
			s.thread[i] = stored
			return
		}
	}
	s.thread = append(s.thread, stored)
}
