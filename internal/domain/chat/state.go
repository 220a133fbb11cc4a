package chat

// ThreadState is derived from a loaded thread on every load; it is never stored.
type ThreadState int

const (
	// ThreadAwaitingFirstContact: the counterparty has not written yet.
	ThreadAwaitingFirstContact ThreadState = iota
	// ThreadOpen: at least one counterparty message exists.
	ThreadOpen
)

func (s ThreadState) String() string {
	switch s {
	case ThreadAwaitingFirstContact:
		return "awaiting_first_contact"
	case ThreadOpen:
		return "open"
	default:
		return "unknown"
	}
}

// DeriveThreadState inspects msgs from viewer's side.
func DeriveThreadState(viewer Role, msgs []Message) ThreadState {
	for _, msg := range msgs {
		if msg.FromCounterparty(viewer) {
			return ThreadOpen
		}
	}
	return ThreadAwaitingFirstContact
}

// CanSend applies the first-contact rule: creators wait for the company.
func (s ThreadState) CanSend(viewer Role) bool {
	if viewer == RoleCreator {
		return s == ThreadOpen
	}
	return true
}

// ParseThreadState reverses String. Unknown input yields ThreadAwaitingFirstContact.
func ParseThreadState(raw string) ThreadState {
	if raw == ThreadOpen.String() {
		return ThreadOpen
	}
	return ThreadAwaitingFirstContact
}
