package api

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseID extracts a numeric target ID from a path or query value.
func ParseID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("target ID is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid target ID %q", s)
	}
	return id, nil
}

// ParseTailCount reads the number of log lines requested. An empty value
// selects def.
func ParseTailCount(raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid line count %q", s)
	}
	return n, nil
}

// MaskToken hides all but the last four characters of a credential.
func MaskToken(token string) string {
	r := []rune(token)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
