package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"octopus/internal/app/outbox"
	"octopus/internal/domain/chat"
)

// Fanout routes a payload to the connections of one user, possibly on
// other instances.
type Fanout interface {
	Notify(ctx context.Context, userID string, payload []byte) error
}

// Notification is what a connected client receives. It tells the client which
// conversation changed; the client reloads through the regular API.
type Notification struct {
	Type          string    `json:"type"`
	ApplicationID string    `json:"application_id"`
	MessageID     string    `json:"message_id,omitempty"`
	From          string    `json:"from,omitempty"`
	At            time.Time `json:"at"`
}

type eventFields struct {
	ApplicationID  string `json:"application_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	ReaderID       string `json:"reader_id"`
	CounterpartyID string `json:"counterparty_id"`
}

// NotifyingOutbox stages records in Next and pushes a notification to both
// participants of the affected application.
type NotifyingOutbox struct {
	Next   outbox.Outbox
	Fanout Fanout
	Logger *slog.Logger
}

func (o *NotifyingOutbox) Add(ctx context.Context, record outbox.EventRecord) error {
	if err := o.Next.Add(ctx, record); err != nil {
		return err
	}
	if o.Fanout == nil {
		return nil
	}
	note, recipients, ok := notificationFor(record)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(note)
	if err != nil {
		return nil
	}
	for _, userID := range recipients {
		if err := o.Fanout.Notify(ctx, userID, payload); err != nil && o.Logger != nil {
			o.Logger.Warn("realtime notify failed", "user_id", userID, "event", record.Name, "error", err)
		}
	}
	return nil
}

func (o *NotifyingOutbox) Flush(ctx context.Context) error {
	return o.Next.Flush(ctx)
}

func notificationFor(record outbox.EventRecord) (Notification, []string, bool) {
	var f eventFields
	if err := json.Unmarshal(record.Payload, &f); err != nil {
		return Notification{}, nil, false
	}
	note := Notification{Type: record.Name, ApplicationID: f.ApplicationID, MessageID: f.MessageID, At: record.OccurredAt}
	var recipients []string
	switch record.Name {
	case chat.EventMessageSent:
		note.From = f.SenderID
		recipients = []string{f.RecipientID, f.SenderID}
	case chat.EventMessagesRead:
		note.From = f.ReaderID
		recipients = []string{f.CounterpartyID, f.ReaderID}
	default:
		return Notification{}, nil, false
	}
	return note, compact(recipients), true
}

func compact(ids []string) []string {
	out := ids[:0]
	seen := map[string]struct{}{}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ outbox.Outbox = (*NotifyingOutbox)(nil)
