package scylla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"octopus/internal/domain/chat"
)

var errNoSession = errors.New("scylla session not initialized")

// Store keeps messages partitioned by application. Applications and profiles
// stay in the primary store.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
	now     func() time.Time
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger, now: time.Now}
}

func (s *Store) ListMessages(ctx context.Context, filter chat.MessageFilter) ([]chat.Message, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	if len(filter.ApplicationIDs) == 0 {
		return []chat.Message{}, nil
	}
	iter := s.session.
		Query(`SELECT application_id, message_id, sender_id, sender_role, content, created_at, read_at FROM messages_by_application WHERE application_id IN ?`,
			filter.ApplicationIDs).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	var (
		out       = make([]chat.Message, 0)
		appID     string
		messageID gocql.UUID
		senderID  string
		role      string
		content   string
		createdAt time.Time
		readAt    time.Time
	)
	for iter.Scan(&appID, &messageID, &senderID, &role, &content, &createdAt, &readAt) {
		out = append(out, toMessage(appID, messageID, senderID, role, content, createdAt, readAt))
		readAt = time.Time{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if filter.Order == chat.OrderDesc {
		return chat.SortNewestFirst(out), nil
	}
	return chat.SortOldestFirst(out), nil
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	if s.session == nil {
		return chat.Message{}, errNoSession
	}
	at := s.now().UTC()
	id := gocql.UUIDFromTime(at)
	if err := s.session.
		Query(`INSERT INTO messages_by_application (application_id, message_id, sender_id, sender_role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ApplicationID, id, msg.SenderID, string(msg.SenderRole), msg.Content, at).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:            id.String(),
		ApplicationID: msg.ApplicationID,
		SenderID:      msg.SenderID,
		SenderRole:    msg.SenderRole,
		Content:       msg.Content,
		CreatedAt:     at.Truncate(time.Millisecond),
	}, nil
}

// MarkRead stamps unread rows of one sender role with a conditional update so
// an existing read time is never overwritten.
func (s *Store) MarkRead(ctx context.Context, params chat.MarkReadParams) error {
	if s.session == nil {
		return errNoSession
	}
	readAt := params.ReadAt
	if readAt.IsZero() {
		readAt = s.now()
	}
	iter := s.session.
		Query(`SELECT message_id, sender_role, created_at, read_at FROM messages_by_application WHERE application_id = ?`,
			params.ApplicationID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var (
		targets   []gocql.UUID
		messageID gocql.UUID
		role      string
		createdAt time.Time
		stamped   time.Time
	)
	for iter.Scan(&messageID, &role, &createdAt, &stamped) {
		if readTarget(params, role, createdAt, stamped) {
			targets = append(targets, messageID)
		}
		stamped = time.Time{}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	var errs []error
	for _, id := range targets {
		if err := s.session.
			Query(`UPDATE messages_by_application SET read_at = ? WHERE application_id = ? AND message_id = ? IF read_at = null`,
				readAt.UTC(), params.ApplicationID, id).
			WithContext(ctx).
			Exec(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && s.logger != nil {
		s.logger.Warn("mark read partially failed", "application_id", params.ApplicationID, "failed", len(errs), "total", len(targets))
	}
	return errors.Join(errs...)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.session == nil {
		return errNoSession
	}
	return s.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}

func readTarget(params chat.MarkReadParams, role string, createdAt, readAt time.Time) bool {
	if role != string(params.SenderRole) || !readAt.IsZero() {
		return false
	}
	return params.Before.IsZero() || !createdAt.After(params.Before)
}

func toMessage(appID string, id gocql.UUID, senderID, role, content string, createdAt, readAt time.Time) chat.Message {
	msg := chat.Message{
		ID:            id.String(),
		ApplicationID: appID,
		SenderID:      senderID,
		SenderRole:    chat.Role(role),
		Content:       content,
		CreatedAt:     createdAt.UTC(),
	}
	if !readAt.IsZero() {
		ts := readAt.UTC()
		msg.ReadAt = &ts
	}
	return msg
}

var _ chat.MessageRepository = (*Store)(nil)
