package chat

import (
	"time"

	"octopus/internal/domain/shared/events"
)

const (
	EventMessageSent  = "chat.message_sent"
	EventMessagesRead = "chat.messages_read"
)

type MessageSent struct {
	events.BaseEvent
	MessageID     string `json:"message_id"`
	ApplicationID string `json:"application_id"`
	SenderID      string `json:"sender_id"`
	SenderRole    Role   `json:"sender_role"`
	RecipientID   string `json:"recipient_id"`
}

type MessagesRead struct {
	events.BaseEvent
	ApplicationID  string    `json:"application_id"`
	ReaderID       string    `json:"reader_id"`
	CounterpartyID string    `json:"counterparty_id"`
	SenderRole     Role      `json:"sender_role"`
	ReadAt         time.Time `json:"read_at"`
}

// NewMessageSent describes msg leaving app towards the other side.
func NewMessageSent(app Application, msg Message) MessageSent {
	return MessageSent{
		BaseEvent:     events.NewBaseEvent(EventMessageSent, app.ID, msg.CreatedAt),
		MessageID:     msg.ID,
		ApplicationID: app.ID,
		SenderID:      msg.SenderID,
		SenderRole:    msg.SenderRole,
		RecipientID:   app.OwnerID(msg.SenderRole.Counterpart()),
	}
}

func NewMessagesRead(app Application, reader Role, at time.Time) MessagesRead {
	return MessagesRead{
		BaseEvent:      events.NewBaseEvent(EventMessagesRead, app.ID, at),
		ApplicationID:  app.ID,
		ReaderID:       app.OwnerID(reader),
		CounterpartyID: app.OwnerID(reader.Counterpart()),
		SenderRole:     reader.Counterpart(),
		ReadAt:         at,
	}
}
