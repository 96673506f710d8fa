package models

import (
	"bytes"
	"fmt"
	"time"
)

// Backend timestamps come either as RFC 3339 or as naive ISO 8601 in UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Timestamp decodes both timestamp flavours the backend emits.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	raw := string(bytes.Trim(data, `"`))
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}

	return fmt.Errorf("unsupported timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// UserSummary is the embedded author/owner block on posts, comments and connections.
type UserSummary struct {
	ID                int64  `json:"id"`
	FullName          string `json:"fullName"`
	Email             string `json:"email,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}
