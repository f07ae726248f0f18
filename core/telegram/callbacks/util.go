// Package callbacks decodes inline button callback data.
package callbacks

import "strings"

// unique buttons are encoded by the Bot API client as "\f<unique>|<payload>".
const uniquePrefix = "\f"

// Normalize strips the unique-button marker so handlers see "<key>" or
// "<key>|<payload>".
func Normalize(data string) string {
	return strings.TrimPrefix(data, uniquePrefix)
}

// Parse splits callback data into its key and optional payload.
func Parse(data string) (string, string) {
	key, payload, _ := strings.Cut(Normalize(data), "|")
	return strings.TrimSpace(key), payload
}

// Key returns only the key part of callback data.
func Key(data string) string {
	k, _ := Parse(data)
	return k
}
