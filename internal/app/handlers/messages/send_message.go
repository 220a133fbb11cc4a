package messages

import (
	"context"
	"log/slog"

	"octopus/internal/app/outbox"
	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/shared/events"
)

const SendMessageKey = "messages.send"

// SendMessageCommand posts a message into the conversation with
// CounterpartyID. ApplicationID pins the target application; when empty the
// application of the newest message is used, else the first application.
type SendMessageCommand struct {
	Viewer         session.Principal `validate:"required"`
	CounterpartyID string            `validate:"required"`
	ApplicationID  string
	Content        string `validate:"required"`
	IdemKey        string
}

func (SendMessageCommand) Key() string { return SendMessageKey }

func (c SendMessageCommand) Principal() session.Principal { return c.Viewer }

func (c SendMessageCommand) IdempotencyKey() string {
	if c.IdemKey == "" {
		return ""
	}
	return c.Viewer.UserID + ":" + c.IdemKey
}

func (SendMessageCommand) ResultPrototype() any { return &SendMessageResult{} }

type SendMessageResult struct {
	Message chat.Message `json:"message"`
}

type SendMessageHandler struct {
	Applications chat.ApplicationRepository
	Messages     chat.MessageRepository
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Logger       *slog.Logger
}

func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (*SendMessageResult, error) {
	if h.Applications == nil || h.Messages == nil {
		return nil, ErrHandlerNotConfigured
	}
	content, err := chat.NormalizeContent(cmd.Content)
	if err != nil {
		return nil, err
	}
	apps, err := conversationApplications(ctx, h.Applications, cmd.Viewer, cmd.CounterpartyID)
	if err != nil {
		return nil, err
	}
	app, err := h.pickApplication(ctx, apps, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}
	stored, err := h.Messages.CreateMessage(ctx, chat.NewMessage{
		ApplicationID: app.ID,
		SenderID:      cmd.Viewer.UserID,
		SenderRole:    cmd.Viewer.Role,
		Content:       content,
	})
	if err != nil {
		return nil, err
	}

	var recorder events.EventRecorder
	recorder.Record(chat.NewMessageSent(app, stored))
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, recorder.PendingEvents()); err != nil && h.Logger != nil {
		h.Logger.Warn("record message event failed", "message_id", stored.ID, "error", err)
	}
	recorder.ClearEvents()
	return &SendMessageResult{Message: stored}, nil
}

func (h *SendMessageHandler) pickApplication(ctx context.Context, apps []chat.Application, requested string) (chat.Application, error) {
	if requested != "" {
		app, ok := findApplication(apps, requested)
		if !ok {
			return chat.Application{}, chat.ErrApplicationNotInThread
		}
		return app, nil
	}
	if len(apps) == 1 {
		return apps[0], nil
	}
	latest, err := h.Messages.ListMessages(ctx, chat.MessageFilter{
		ApplicationIDs: chat.ApplicationIDs(apps),
		Order:          chat.OrderDesc,
	})
	if err != nil {
		return chat.Application{}, err
	}
	if sorted := chat.SortNewestFirst(latest); len(sorted) > 0 {
		if app, ok := findApplication(apps, sorted[0].ApplicationID); ok {
			return app, nil
		}
	}
	return apps[0], nil
}
