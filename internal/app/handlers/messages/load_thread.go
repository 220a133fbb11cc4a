package messages

import (
	"context"
	"time"

	"octopus/internal/app/session"
	"octopus/internal/app/thread"
	"octopus/internal/domain/chat"
)

const LoadThreadKey = "messages.load_thread"

// LoadThreadQuery opens the thread with one counterparty. Location selects the
// calendar used for day buckets; nil means UTC.
type LoadThreadQuery struct {
	Viewer         session.Principal `validate:"required"`
	CounterpartyID string            `validate:"required"`
	Location       *time.Location    `validate:"-"`
}

func (LoadThreadQuery) Key() string { return LoadThreadKey }

func (q LoadThreadQuery) Principal() session.Principal { return q.Viewer }

type ThreadView struct {
	CounterpartyID string
	Snapshot       thread.Snapshot
	Buckets        []chat.DateBucket
	CanSend        bool
}

type LoadThreadHandler struct {
	Applications chat.ApplicationRepository
	Threads      *thread.Loader
	Now          func() time.Time
}

func (h *LoadThreadHandler) Handle(ctx context.Context, q LoadThreadQuery) (*ThreadView, error) {
	if h.Applications == nil || h.Threads == nil {
		return nil, ErrHandlerNotConfigured
	}
	apps, err := conversationApplications(ctx, h.Applications, q.Viewer, q.CounterpartyID)
	if err != nil {
		return nil, err
	}
	snap, err := h.Threads.Load(ctx, q.Viewer, chat.ApplicationIDs(apps))
	if err != nil {
		return nil, err
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return &ThreadView{
		CounterpartyID: q.CounterpartyID,
		Snapshot:       snap,
		Buckets:        chat.GroupByDate(snap.Messages, now, loc),
		CanSend:        snap.State.CanSend(q.Viewer.Role),
	}, nil
}
