package model

import (
	"encoding/json"
	"strings"
)

// Tags is the ordered tag list of a photo. It is persisted as a JSON array
// in a single TEXT column.
type Tags []string

// ParseTags turns the comma-separated form value sent by clients into Tags.
// Entries are trimmed and empty entries dropped, so "a, b , ,c" becomes
// [a b c]. An empty input yields an empty, non-nil slice.
func ParseTags(csv string) Tags {
	tags := Tags{}
	for _, part := range strings.Split(csv, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Encode returns the column representation of t.
func (t Tags) Encode() string {
	if t == nil {
		t = Tags{}
	}
	// Marshalling a []string cannot fail.
	b, _ := json.Marshal([]string(t))
	return string(b)
}

// DecodeTags reads a tags column. Rows written by this service hold a JSON
// array; older rows may hold plain comma-separated text, which is parsed
// the same way as client input. Never returns nil.
func DecodeTags(raw string) Tags {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tags{}
	}
	var decoded []string
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		tags := Tags{}
		for _, t := range decoded {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	}
	return ParseTags(raw)
}
