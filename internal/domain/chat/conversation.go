package chat

import (
	"sort"

	"octopus/internal/domain/profile"
)

// Conversation is the derived view of every application shared with one
// counterparty. It is rebuilt on every load and never stored.
type Conversation struct {
	CounterpartyID         string
	DisplayName            string
	AvatarURL              string
	ApplicationIDs         []string
	LastMessage            *MessagePreview
	UnreadCount            int
	HasCounterpartyMessage bool
}

// BuildConversations emits one conversation per distinct counterparty of apps,
// most recent activity first. Conversations without messages go last in
// application order.
func BuildConversations(viewer Role, apps []Application, profiles map[string]profile.Profile, summaries map[string]Summary) []Conversation {
	index := make(map[string]int)
	var out []Conversation
	for _, app := range apps {
		counterparty := app.CounterpartyID(viewer)
		if counterparty == "" {
			continue
		}
		if i, ok := index[counterparty]; ok {
			out[i].ApplicationIDs = append(out[i].ApplicationIDs, app.ID)
			continue
		}
		p := profiles[counterparty]
		sum := summaries[counterparty]
		index[counterparty] = len(out)
		out = append(out, Conversation{
			CounterpartyID:         counterparty,
			DisplayName:            profile.DisplayName(p, viewer.Counterpart().Label()),
			AvatarURL:              p.AvatarURL,
			ApplicationIDs:         []string{app.ID},
			LastMessage:            sum.LastMessage,
			UnreadCount:            sum.UnreadCount,
			HasCounterpartyMessage: sum.HasCounterpartyMessage,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out
}

// FindConversation returns the conversation with counterpartyID, if present.
func FindConversation(list []Conversation, counterpartyID string) (Conversation, bool) {
	for _, c := range list {
		if c.CounterpartyID == counterpartyID {
			return c, true
		}
	}
	return Conversation{}, false
}

// TotalUnread sums unread counts across conversations.
func TotalUnread(list []Conversation) int {
	total := 0
	for _, c := range list {
		total += c.UnreadCount
	}
	return total
}
