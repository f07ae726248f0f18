package logger

import (
	"strconv"
	"strings"
	"unicode"
)

// Sanitize drops control and format runes except tab and newline. User text
// ends up in log lines, so nothing in it may break a line apart or hide
// content from a terminal.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes of it.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Sanitize(s)
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// BuildRID formats the correlation id of an update as updateID:userID.
func BuildRID(updateID int, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites every numeric segment of a colon separated rid in base36
// joined by dots. Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) < 2 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
