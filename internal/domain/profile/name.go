package profile

import "strings"

// DisplayName resolves the name shown for p: structured bio name, full name,
// username, then fallback.
func DisplayName(p Profile, fallback string) string {
	if parsed, ok := ParseBio(p.BioRaw).(BioStructuredName); ok {
		return parsed.Name
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	return fallback
}
