package store

import (
	"strconv"
	"strings"
	"time"
)

// Snapshot is a point-in-time view of one document.
type Snapshot struct {
	Path   string
	Exists bool
	Fields map[string]any
}

// ID returns the last path segment (the document id within its collection).
func (s Snapshot) ID() string {
	if i := strings.LastIndexByte(s.Path, '/'); i >= 0 {
		return s.Path[i+1:]
	}
	return s.Path
}

// String reads a string field, or "" when absent.
func (s Snapshot) String(field string) string {
	v, _ := s.Fields[field].(string)
	return v
}

// Int reads a numeric field. Implementations may surface numbers as int,
// int64, or float64 (JSON round-trips), so all three are accepted.
func (s Snapshot) Int(field string) int {
	switch v := s.Fields[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// Bool reads a boolean field, or false when absent.
func (s Snapshot) Bool(field string) bool {
	v, _ := s.Fields[field].(bool)
	return v
}

// Time reads a timestamp field stored either natively or as RFC3339.
func (s Snapshot) Time(field string) time.Time {
	switch v := s.Fields[field].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// StringMap reads a map-of-strings field (e.g. question options).
func (s Snapshot) StringMap(field string) map[string]string {
	switch v := s.Fields[field].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, raw := range v {
			if str, ok := raw.(string); ok {
				out[k] = str
			}
		}
		return out
	}
	return nil
}
