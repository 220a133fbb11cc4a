package chat

import (
	"context"
	"time"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ApplicationFilter selects the viewer's applications. An empty Status means
// any status.
type ApplicationFilter struct {
	OwnerID    string
	ViewerRole Role
	Status     string
}

type MessageFilter struct {
	ApplicationIDs []string
	Order          Order
}

type NewMessage struct {
	ApplicationID string
	SenderID      string
	SenderRole    Role
	Content       string
}

// MarkReadParams targets unread messages written by SenderRole in one
// application. A zero Before marks every such message.
type MarkReadParams struct {
	ApplicationID string
	SenderRole    Role
	Before        time.Time
	ReadAt        time.Time
}

type ApplicationRepository interface {
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
}

// MessageRepository is the message store. MarkRead only touches rows whose
// read timestamp is still unset, so repeating it is harmless.
type MessageRepository interface {
	ListMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
	CreateMessage(ctx context.Context, msg NewMessage) (Message, error)
	MarkRead(ctx context.Context, params MarkReadParams) error
}
