package messages

import (
	"context"
	"errors"

	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

var ErrHandlerNotConfigured = errors.New("messages: handler missing dependencies")

// conversationApplications returns the viewer's accepted applications shared
// with counterpartyID.
func conversationApplications(ctx context.Context, repo chat.ApplicationRepository, viewer session.Principal, counterpartyID string) ([]chat.Application, error) {
	apps, err := repo.ListApplications(ctx, chat.ApplicationFilter{
		OwnerID:    viewer.UserID,
		ViewerRole: viewer.Role,
		Status:     chat.ApplicationAccepted,
	})
	if err != nil {
		return nil, err
	}
	matched := chat.ApplicationsWith(apps, viewer.Role, counterpartyID)
	if len(matched) == 0 {
		return nil, chat.ErrConversationNotFound
	}
	return matched, nil
}

func findApplication(apps []chat.Application, id string) (chat.Application, bool) {
	for _, app := range apps {
		if app.ID == id {
			return app, true
		}
	}
	return chat.Application{}, false
}
