package classifier

import (
	"fmt"
	"strings"
)

// Field accessors for RawRow. encoding/json decodes every number as
// float64 and every string as string; anything else is row damage the
// caller decides how to handle.

// String returns a required string field.
func (r RawRow) String(key string) (string, error) {
	v, ok := r[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

// OptionalString returns a string field, or nil when absent, null, or
// blank.
func (r RawRow) OptionalString(key string) *string {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a required numeric field.
func (r RawRow) Float(key string) (float64, error) {
	v, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("missing required field %q", key)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
	return f, nil
}

// OptionalFloat returns a numeric field, or nil when absent or null.
// A present but non-numeric value is an error so callers can tell
// damage apart from absence.
func (r RawRow) OptionalFloat(key string) (*float64, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
	return &f, nil
}
