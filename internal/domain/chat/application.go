package chat

import "errors"

const ApplicationAccepted = "accepted"

var (
	ErrInvalidRole            = errors.New("chat: invalid role")
	ErrConversationNotFound   = errors.New("chat: conversation not found")
	ErrApplicationNotInThread = errors.New("chat: application does not belong to conversation")
	ErrEmptyMessage           = errors.New("chat: message content is empty")
	ErrAwaitingFirstContact   = errors.New("chat: creator must wait for the company to write first")
	ErrNoApplication          = errors.New("chat: conversation has no application")
	ErrMessageTooLong         = errors.New("chat: message content too long")
)

// MaxContentLength bounds a single message, in runes.
const MaxContentLength = 4000

// Application is an accepted working relationship between one creator and one
// company for a job. Several applications can share a counterparty.
type Application struct {
	ID        string
	CreatorID string
	CompanyID string
	JobID     string
	Status    string
}

// CounterpartyID returns the other side's user id as seen by viewer.
func (a Application) CounterpartyID(viewer Role) string {
	if viewer == RoleCreator {
		return a.CompanyID
	}
	return a.CreatorID
}

// OwnerID returns the viewer's own id on the application.
func (a Application) OwnerID(viewer Role) string {
	if viewer == RoleCreator {
		return a.CreatorID
	}
	return a.CompanyID
}

// ApplicationsWith keeps the applications whose counterparty is counterpartyID,
// in input order.
func ApplicationsWith(apps []Application, viewer Role, counterpartyID string) []Application {
	var out []Application
	for _, app := range apps {
		if app.CounterpartyID(viewer) == counterpartyID {
			out = append(out, app)
		}
	}
	return out
}

// ApplicationIDs lists ids in input order.
func ApplicationIDs(apps []Application) []string {
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ID)
	}
	return ids
}

// CounterpartyIDs lists distinct counterparty ids in first-appearance order.
func CounterpartyIDs(apps []Application, viewer Role) []string {
	seen := make(map[string]struct{}, len(apps))
	out := make([]string, 0, len(apps))
	for _, app := range apps {
		id := app.CounterpartyID(viewer)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
