package inbox

import (
	"context"

	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

// UnreadCountQuery totals unread counterparty messages for the navigation badge.
type UnreadCountQuery struct {
	Viewer session.Principal `validate:"required"`
}

func (UnreadCountQuery) Key() string { return UnreadCountKey }

func (q UnreadCountQuery) Principal() session.Principal { return q.Viewer }

type UnreadCountResult struct {
	Total          int
	ByCounterparty map[string]int
}

type UnreadCountHandler struct {
	Applications chat.ApplicationRepository
	Messages     chat.MessageRepository
}

func (h *UnreadCountHandler) Handle(ctx context.Context, q UnreadCountQuery) (*UnreadCountResult, error) {
	if h.Applications == nil || h.Messages == nil {
		return nil, ErrHandlerNotConfigured
	}
	if err := q.Viewer.Validate(); err != nil {
		return nil, err
	}
	result := &UnreadCountResult{ByCounterparty: map[string]int{}}
	apps, err := listApplications(ctx, h.Applications, q.Viewer, "")
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return result, nil
	}
	msgs, err := h.Messages.ListMessages(ctx, chat.MessageFilter{ApplicationIDs: chat.ApplicationIDs(apps), Order: chat.OrderDesc})
	if err != nil {
		return nil, err
	}
	for counterparty, sum := range chat.Aggregate(q.Viewer.Role, apps, msgs) {
		if sum.UnreadCount == 0 {
			continue
		}
		result.ByCounterparty[counterparty] = sum.UnreadCount
		result.Total += sum.UnreadCount
	}
	return result, nil
}
