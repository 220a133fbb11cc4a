package thread

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

const defaultMarkReadTimeout = 5 * time.Second

// Snapshot is one load of a thread: messages oldest first and the derived state.
type Snapshot struct {
	ApplicationIDs []string
	Messages       []chat.Message
	State          chat.ThreadState
}

// Loader fetches threads and marks counterparty messages read in the background.
type Loader struct {
	Messages        chat.MessageRepository
	Logger          *slog.Logger
	MarkReadTimeout time.Duration
	Now             func() time.Time

	wg sync.WaitGroup
}

var ErrLoaderNotConfigured = errors.New("thread: loader missing message repository")

// Load returns the thread of applicationIDs. For every application holding
// unread counterparty messages it fires a mark-read on a detached context;
// Load never waits for those.
func (l *Loader) Load(ctx context.Context, viewer session.Principal, applicationIDs []string) (Snapshot, error) {
	if l == nil || l.Messages == nil {
		return Snapshot{}, ErrLoaderNotConfigured
	}
	if len(applicationIDs) == 0 {
		return Snapshot{State: chat.ThreadAwaitingFirstContact}, nil
	}
	msgs, err := l.Messages.ListMessages(ctx, chat.MessageFilter{ApplicationIDs: applicationIDs, Order: chat.OrderAsc})
	if err != nil {
		return Snapshot{}, err
	}
	msgs = chat.SortOldestFirst(msgs)
	for _, appID := range chat.UnreadFromCounterparty(viewer.Role, msgs) {
		l.markRead(ctx, viewer, appID, latestFrom(msgs, appID, viewer.Role.Counterpart()))
	}
	return Snapshot{
		ApplicationIDs: append([]string(nil), applicationIDs...),
		Messages:       msgs,
		State:          chat.DeriveThreadState(viewer.Role, msgs),
	}, nil
}

// Wait blocks until every background mark-read has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) markRead(ctx context.Context, viewer session.Principal, applicationID string, before time.Time) {
	timeout := l.MarkReadTimeout
	if timeout <= 0 {
		timeout = defaultMarkReadTimeout
	}
	params := chat.MarkReadParams{
		ApplicationID: applicationID,
		SenderRole:    viewer.Role.Counterpart(),
		Before:        before,
		ReadAt:        l.now(),
	}
	detached := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		callCtx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if err := l.Messages.MarkRead(callCtx, params); err != nil && l.Logger != nil {
			l.Logger.Warn("mark read failed", "application_id", applicationID, "user_id", viewer.UserID, "error", err)
		}
	}()
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// latestFrom is the newest creation time of role's messages in applicationID.
func latestFrom(msgs []chat.Message, applicationID string, role chat.Role) time.Time {
	var latest time.Time
	for _, m := range msgs {
		if m.ApplicationID == applicationID && m.SenderRole == role && m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest
}
