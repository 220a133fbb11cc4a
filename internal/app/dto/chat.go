package dto

import (
	"time"

	"octopus/internal/domain/chat"
)

const dayLayout = "2006-01-02"

// MessagePreview is the last line shown under a conversation.
type MessagePreview struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is one counterparty row of the inbox.
type Conversation struct {
	CounterpartyID         string          `json:"counterparty_id"`
	DisplayName            string          `json:"display_name"`
	AvatarURL              string          `json:"avatar_url,omitempty"`
	ApplicationIDs         []string        `json:"application_ids"`
	LastMessage            *MessagePreview `json:"last_message,omitempty"`
	UnreadCount            int             `json:"unread_count"`
	HasCounterpartyMessage bool            `json:"has_counterparty_message"`
}

// ConversationList is the inbox payload. Thread is set when the request
// deep-linked a counterparty.
type ConversationList struct {
	Items       []Conversation `json:"items"`
	TotalUnread int            `json:"total_unread"`
	Selected    string         `json:"selected,omitempty"`
	Thread      *Thread        `json:"thread,omitempty"`
}

type ChatMessage struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	SenderID      string     `json:"sender_id"`
	SenderRole    string     `json:"sender_role"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

type DateBucket struct {
	Label    string        `json:"label"`
	Day      string        `json:"day"`
	Messages []ChatMessage `json:"messages"`
}

// Thread is an opened conversation.
type Thread struct {
	CounterpartyID string        `json:"counterparty_id"`
	ApplicationIDs []string      `json:"application_ids"`
	State          string        `json:"state"`
	CanSend        bool          `json:"can_send"`
	Messages       []ChatMessage `json:"messages"`
	Buckets        []DateBucket  `json:"buckets,omitempty"`
}

type SendMessageRequest struct {
	Content       string `json:"content" binding:"required"`
	ApplicationID string `json:"application_id,omitempty"`
}

type MarkReadResponse struct {
	ApplicationIDs []string  `json:"application_ids"`
	ReadAt         time.Time `json:"read_at"`
}

type UnreadCount struct {
	Total          int            `json:"total"`
	ByCounterparty map[string]int `json:"by_counterparty"`
}

func FromConversation(c chat.Conversation) Conversation {
	out := Conversation{
		CounterpartyID:         c.CounterpartyID,
		DisplayName:            c.DisplayName,
		AvatarURL:              c.AvatarURL,
		ApplicationIDs:         append([]string{}, c.ApplicationIDs...),
		UnreadCount:            c.UnreadCount,
		HasCounterpartyMessage: c.HasCounterpartyMessage,
	}
	if c.LastMessage != nil {
		out.LastMessage = &MessagePreview{ID: c.LastMessage.ID, Content: c.LastMessage.Content, CreatedAt: c.LastMessage.CreatedAt}
	}
	return out
}

func FromConversations(items []chat.Conversation) []Conversation {
	out := make([]Conversation, 0, len(items))
	for _, c := range items {
		out = append(out, FromConversation(c))
	}
	return out
}

// ToConversation is the inverse of FromConversation.
func ToConversation(c Conversation) chat.Conversation {
	out := chat.Conversation{
		CounterpartyID:         c.CounterpartyID,
		DisplayName:            c.DisplayName,
		AvatarURL:              c.AvatarURL,
		ApplicationIDs:         append([]string(nil), c.ApplicationIDs...),
		UnreadCount:            c.UnreadCount,
		HasCounterpartyMessage: c.HasCounterpartyMessage,
	}
	if c.LastMessage != nil {
		out.LastMessage = &chat.MessagePreview{ID: c.LastMessage.ID, Content: c.LastMessage.Content, CreatedAt: c.LastMessage.CreatedAt}
	}
	return out
}

func ToConversations(items []Conversation) []chat.Conversation {
	out := make([]chat.Conversation, 0, len(items))
	for _, c := range items {
		out = append(out, ToConversation(c))
	}
	return out
}

func FromMessage(m chat.Message) ChatMessage {
	return ChatMessage{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		SenderID:      m.SenderID,
		SenderRole:    string(m.SenderRole),
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		ReadAt:        m.ReadAt,
	}
}

func FromMessages(msgs []chat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromMessage(m))
	}
	return out
}

func ToMessage(m ChatMessage) chat.Message {
	return chat.Message{
		ID:            m.ID,
		ApplicationID: m.ApplicationID,
		SenderID:      m.SenderID,
		SenderRole:    chat.Role(m.SenderRole),
		Content:       m.Content,
		CreatedAt:     m.CreatedAt,
		ReadAt:        m.ReadAt,
	}
}

func ToMessages(msgs []ChatMessage) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToMessage(m))
	}
	return out
}

func FromBuckets(buckets []chat.DateBucket) []DateBucket {
	out := make([]DateBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, DateBucket{
			Label:    b.Label,
			Day:      b.Day.Format(dayLayout),
			Messages: FromMessages(b.Messages),
		})
	}
	return out
}

// NewThread assembles a thread payload.
func NewThread(counterpartyID string, appIDs []string, msgs []chat.Message, state chat.ThreadState, canSend bool, buckets []chat.DateBucket) Thread {
	t := Thread{
		CounterpartyID: counterpartyID,
		ApplicationIDs: append([]string{}, appIDs...),
		State:          state.String(),
		CanSend:        canSend,
		Messages:       FromMessages(msgs),
	}
	if buckets != nil {
		t.Buckets = FromBuckets(buckets)
	}
	return t
}
