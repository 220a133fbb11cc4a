package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

// ErrApplicationNotFound is returned when a message targets an unknown application.
var ErrApplicationNotFound = errors.New("memory: application not found")

// Store keeps applications, messages and profiles in memory. It backs local
// runs, fixtures and tests.
type Store struct {
	mu           sync.RWMutex
	applications []chat.Application
	messages     []chat.Message
	profiles     map[profile.Kind]map[string]profile.Profile
	now          func() time.Time
}

func NewStore() *Store {
	return &Store{
		profiles: map[profile.Kind]map[string]profile.Profile{},
		now:      time.Now,
	}
}

// WithClock replaces the clock used to stamp new messages.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// PutApplication stores or replaces an application by id.
func (s *Store) PutApplication(app chat.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.applications {
		if existing.ID == app.ID {
			s.applications[i] = app
			return
		}
	}
	s.applications = append(s.applications, app)
}

// PutMessage stores a message as-is, keeping insertion order.
func (s *Store) PutMessage(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *Store) PutProfile(kind profile.Kind, p profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles[kind] == nil {
		s.profiles[kind] = map[string]profile.Profile{}
	}
	s.profiles[kind][p.UserID] = p
}

func (s *Store) ListApplications(ctx context.Context, filter chat.ApplicationFilter) ([]chat.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Application, 0)
	for _, app := range s.applications {
		if filter.OwnerID != "" && app.OwnerID(filter.ViewerRole) != filter.OwnerID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(app.Status, filter.Status) {
			continue
		}
		out = append(out, app)
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, filter chat.MessageFilter) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, 0)
	for _, msg := range s.messages {
		if slices.Contains(filter.ApplicationIDs, msg.ApplicationID) {
			out = append(out, copyMessage(msg))
		}
	}
	if filter.Order == chat.OrderDesc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := false
	for _, app := range s.applications {
		if app.ID == msg.ApplicationID {
			known = true
			break
		}
	}
	if !known {
		return chat.Message{}, ErrApplicationNotFound
	}
	stored := chat.Message{
		ID:            uuid.NewString(),
		ApplicationID: msg.ApplicationID,
		SenderID:      msg.SenderID,
		SenderRole:    msg.SenderRole,
		Content:       msg.Content,
		CreatedAt:     s.now().UTC(),
	}
	s.messages = append(s.messages, stored)
	return stored, nil
}

// MarkRead only sets the read timestamp on rows where it is still unset.
func (s *Store) MarkRead(ctx context.Context, params chat.MarkReadParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	readAt := params.ReadAt
	if readAt.IsZero() {
		readAt = s.now().UTC()
	}
	for i, msg := range s.messages {
		if msg.ApplicationID != params.ApplicationID || msg.SenderRole != params.SenderRole || msg.ReadAt != nil {
			continue
		}
		if !params.Before.IsZero() && msg.CreatedAt.After(params.Before) {
			continue
		}
		ts := readAt
		s.messages[i].ReadAt = &ts
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context, kind profile.Kind, userIDs []string) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dir := s.profiles[kind]
	out := make([]profile.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := dir[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func copyMessage(msg chat.Message) chat.Message {
	if msg.ReadAt != nil {
		ts := *msg.ReadAt
		msg.ReadAt = &ts
	}
	return msg
}

var (
	_ chat.ApplicationRepository = (*Store)(nil)
	_ chat.MessageRepository     = (*Store)(nil)
	_ profile.Repository         = (*Store)(nil)
)
