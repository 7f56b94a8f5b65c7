package sessioncache

import (
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayouts are zone-less ISO timestamps found in meta.json files written
// by older releases. They are read as local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// stamp is the meta.json timestamp. It is written as RFC 3339.
type stamp time.Time

func (s stamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(s).Format(time.RFC3339Nano))
}

func (s *stamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		*s = stamp(t)
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			*s = stamp(t)
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}
