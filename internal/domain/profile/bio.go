package profile

import (
	"encoding/json"
	"strings"
)

// BioParse is the outcome of reading a raw bio blob. It is one of
// BioStructuredName, BioOtherShape or BioUnparsed.
type BioParse interface {
	isBioParse()
}

// BioStructuredName is a bio that decoded to a JSON object carrying a usable name.
type BioStructuredName struct {
	Name string
}

// BioOtherShape is a bio that is valid JSON but holds no usable name.
type BioOtherShape struct{}

// BioUnparsed is a bio that is empty or not JSON at all (plain prose, truncated blobs).
type BioUnparsed struct {
	Err error
}

func (BioStructuredName) isBioParse() {}
func (BioOtherShape) isBioParse()     {}
func (BioUnparsed) isBioParse()       {}

// ParseBio never fails; decoding problems are reported as BioUnparsed.
func ParseBio(raw string) BioParse {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return BioUnparsed{}
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return BioUnparsed{Err: err}
	}
	fields, ok := decoded.(map[string]any)
	if !ok {
		return BioOtherShape{}
	}
	first := stringField(fields, "firstName")
	last := stringField(fields, "lastName")
	if first != "" && last != "" {
		return BioStructuredName{Name: first + " " + last}
	}
	if name := stringField(fields, "name"); name != "" {
		return BioStructuredName{Name: name}
	}
	if name := stringField(fields, "fullName"); name != "" {
		return BioStructuredName{Name: name}
	}
	return BioOtherShape{}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
