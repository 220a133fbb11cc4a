package chat

import (
	"sort"
	"strings"
	"time"
)

// TempIDPrefix marks messages that exist only locally until the store confirms them.
const TempIDPrefix = "temp-"

// Message is one chat line of an application thread. ReadAt is nil while the
// recipient has not opened the thread; once set it is never cleared.
type Message struct {
	ID            string
	ApplicationID string
	SenderID      string
	SenderRole    Role
	Content       string
	CreatedAt     time.Time
	ReadAt        *time.Time
}

func (m Message) Unread() bool {
	return m.ReadAt == nil
}

// FromCounterparty reports whether the message was written by the other side.
func (m Message) FromCounterparty(viewer Role) bool {
	return m.SenderRole == viewer.Counterpart()
}

func (m Message) Temporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// MessagePreview is the last-message summary of a conversation.
type MessagePreview struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

func previewOf(m Message) *MessagePreview {
	return &MessagePreview{ID: m.ID, Content: m.Content, CreatedAt: m.CreatedAt}
}

// SortNewestFirst returns a copy ordered by descending creation time. Equal
// timestamps keep their input order.
func SortNewestFirst(msgs []Message) []Message {
	out := append([]Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SortOldestFirst returns a copy ordered by ascending creation time. Equal
// timestamps keep their input order.
func SortOldestFirst(msgs []Message) []Message {
	out := append([]Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// NormalizeContent trims and validates message text.
func NormalizeContent(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(content)) > MaxContentLength {
		return "", ErrMessageTooLong
	}
	return content, nil
}
