package chat

// Summary is the per-counterparty rollup of every message across that
// counterparty's applications.
type Summary struct {
	LastMessage            *MessagePreview
	UnreadCount            int
	HasCounterpartyMessage bool
}

// Aggregate groups msgs by counterparty through the application they belong
// to. Messages of unknown applications are ignored. The last message of a
// group is the first one met in newest-first order, so equal timestamps keep
// source order.
func Aggregate(viewer Role, apps []Application, msgs []Message) map[string]Summary {
	owner := make(map[string]string, len(apps))
	for _, app := range apps {
		owner[app.ID] = app.CounterpartyID(viewer)
	}
	out := make(map[string]Summary, len(apps))
	for _, msg := range SortNewestFirst(msgs) {
		counterparty, ok := owner[msg.ApplicationID]
		if !ok {
			continue
		}
		sum := out[counterparty]
		if sum.LastMessage == nil {
			sum.LastMessage = previewOf(msg)
		}
		if msg.FromCounterparty(viewer) {
			sum.HasCounterpartyMessage = true
			if msg.Unread() {
				sum.UnreadCount++
			}
		}
		out[counterparty] = sum
	}
	return out
}

// UnreadFromCounterparty lists, in first-seen order, the application ids that
// hold at least one unread counterparty message.
func UnreadFromCounterparty(viewer Role, msgs []Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, msg := range msgs {
		if !msg.FromCounterparty(viewer) || !msg.Unread() || msg.Temporary() {
			continue
		}
		if _, ok := seen[msg.ApplicationID]; ok {
			continue
		}
		seen[msg.ApplicationID] = struct{}{}
		out = append(out, msg.ApplicationID)
	}
	return out
}
