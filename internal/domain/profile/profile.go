package profile

import (
	"context"
	"strings"
)

// Kind selects the profile directory a user id is resolved against.
type Kind string

const (
	KindCreator Kind = "creator"
	KindCompany Kind = "company"
)

// Profile is the external profile record of a marketplace participant.
type Profile struct {
	UserID    string
	FullName  string
	Username  string
	BioRaw    string
	AvatarURL string
}

// Repository loads profiles of one kind by user id. Unknown ids are skipped.
type Repository interface {
	ListProfiles(ctx context.Context, kind Kind, userIDs []string) ([]Profile, error)
}

// Index keys profiles by user id. Later duplicates win.
func Index(profiles []Profile) map[string]Profile {
	out := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		id := strings.TrimSpace(p.UserID)
		if id == "" {
			continue
		}
		out[id] = p
	}
	return out
}
