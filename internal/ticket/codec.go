package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// DecodeCollection parses the backend's ticket object (id -> ticket fields).
// Entries whose value is not a JSON object are skipped.
func DecodeCollection(body []byte, loc *time.Location) (Collection, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] != '{' {
		return nil, errors.New("expected a JSON object of tickets")
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}

	out := make(Collection, len(raw))
	for key, value := range raw {
		fields, ok := value.(map[string]any)
		if !ok {
			continue
		}
		t := FromFields(key, fields, loc)
		out[t.ID] = t
	}
	return out, nil
}

// EncodeCollection renders tickets keyed by id, the shape served by GET /tickets/{userID}.
func EncodeCollection(tickets map[string]map[string]any) ([]byte, error) {
	if tickets == nil {
		tickets = map[string]map[string]any{}
	}
	return json.Marshal(tickets)
}
