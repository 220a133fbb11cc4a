package inbox

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"octopus/internal/app/session"
	"octopus/internal/app/thread"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

const (
	ListConversationsKey = "inbox.list_conversations"
	UnreadCountKey       = "inbox.unread_count"
)

// ListConversationsQuery builds the viewer's conversation list. Target is an
// optional deep-link counterparty whose thread is loaded alongside the list.
type ListConversationsQuery struct {
	Viewer session.Principal `validate:"required"`
	Status string
	Target string
}

func (ListConversationsQuery) Key() string { return ListConversationsKey }

func (q ListConversationsQuery) Principal() session.Principal { return q.Viewer }

type ListConversationsResult struct {
	Conversations []chat.Conversation
	Selected      *chat.Conversation
	Thread        *thread.Snapshot
	TotalUnread   int
}

// ListConversationsHandler joins applications, profiles and messages into
// conversations.
type ListConversationsHandler struct {
	Applications chat.ApplicationRepository
	Messages     chat.MessageRepository
	Profiles     profile.Repository
	Threads      *thread.Loader
	Logger       *slog.Logger
}

var ErrHandlerNotConfigured = errors.New("inbox: handler missing dependencies")

func (h *ListConversationsHandler) Handle(ctx context.Context, q ListConversationsQuery) (*ListConversationsResult, error) {
	if h.Applications == nil || h.Messages == nil {
		return nil, ErrHandlerNotConfigured
	}
	if err := q.Viewer.Validate(); err != nil {
		return nil, err
	}
	viewer := q.Viewer.Role
	apps, err := listApplications(ctx, h.Applications, q.Viewer, q.Status)
	if err != nil {
		return nil, err
	}
	result := &ListConversationsResult{Conversations: []chat.Conversation{}}
	if len(apps) == 0 {
		return result, nil
	}

	var (
		profiles map[string]profile.Profile
		msgs     []chat.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profiles = h.loadProfiles(gctx, viewer, chat.CounterpartyIDs(apps, viewer))
		return nil
	})
	g.Go(func() error {
		var err error
		msgs, err = h.Messages.ListMessages(gctx, chat.MessageFilter{
			ApplicationIDs: chat.ApplicationIDs(apps),
			Order:          chat.OrderDesc,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Conversations = chat.BuildConversations(viewer, apps, profiles, chat.Aggregate(viewer, apps, msgs))
	result.TotalUnread = chat.TotalUnread(result.Conversations)

	if q.Target == "" {
		return result, nil
	}
	selected, ok := chat.FindConversation(result.Conversations, q.Target)
	if !ok {
		return result, nil
	}
	result.Selected = &selected
	if h.Threads != nil {
		snap, err := h.Threads.Load(ctx, q.Viewer, selected.ApplicationIDs)
		if err != nil {
			h.logWarn("deep link thread load failed", err, "counterparty_id", q.Target)
		} else {
			result.Thread = &snap
		}
	}
	return result, nil
}

// loadProfiles degrades to an empty index on failure so names fall back to
// the role placeholder.
func (h *ListConversationsHandler) loadProfiles(ctx context.Context, viewer chat.Role, ids []string) map[string]profile.Profile {
	if h.Profiles == nil || len(ids) == 0 {
		return nil
	}
	list, err := h.Profiles.ListProfiles(ctx, viewer.Counterpart().ProfileKind(), ids)
	if err != nil {
		h.logWarn("profile lookup failed", err, "count", len(ids))
		return nil
	}
	return profile.Index(list)
}

func (h *ListConversationsHandler) logWarn(msg string, err error, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Warn(msg, append([]any{"error", err}, attrs...)...)
	}
}

func listApplications(ctx context.Context, repo chat.ApplicationRepository, viewer session.Principal, status string) ([]chat.Application, error) {
	if status == "" {
		status = chat.ApplicationAccepted
	}
	return repo.ListApplications(ctx, chat.ApplicationFilter{
		OwnerID:    viewer.UserID,
		ViewerRole: viewer.Role,
		Status:     status,
	})
}
