package messages

import (
	"context"
	"errors"
	"time"

	"octopus/internal/app/outbox"
	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/shared/events"
)

const MarkReadKey = "messages.mark_read"

// MarkReadCommand marks every counterparty message of the conversation read.
type MarkReadCommand struct {
	Viewer         session.Principal `validate:"required"`
	CounterpartyID string            `validate:"required"`
}

func (MarkReadCommand) Key() string { return MarkReadKey }

func (c MarkReadCommand) Principal() session.Principal { return c.Viewer }

type MarkReadResult struct {
	ApplicationIDs []string  `json:"application_ids"`
	ReadAt         time.Time `json:"read_at"`
}

type MarkReadHandler struct {
	Applications chat.ApplicationRepository
	Messages     chat.MessageRepository
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Now          func() time.Time
}

// Handle attempts every application and joins the failures.
func (h *MarkReadHandler) Handle(ctx context.Context, cmd MarkReadCommand) (*MarkReadResult, error) {
	if h.Applications == nil || h.Messages == nil {
		return nil, ErrHandlerNotConfigured
	}
	apps, err := conversationApplications(ctx, h.Applications, cmd.Viewer, cmd.CounterpartyID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if h.Now != nil {
		now = h.Now().UTC()
	}
	var (
		recorder events.EventRecorder
		errs     []error
		marked   []string
	)
	for _, app := range apps {
		err := h.Messages.MarkRead(ctx, chat.MarkReadParams{
			ApplicationID: app.ID,
			SenderRole:    cmd.Viewer.Role.Counterpart(),
			Before:        now,
			ReadAt:        now,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		marked = append(marked, app.ID)
		recorder.Record(chat.NewMessagesRead(app, cmd.Viewer.Role, now))
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, recorder.PendingEvents()); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &MarkReadResult{ApplicationIDs: marked, ReadAt: now}, nil
}
