// Package state provides the per-user conversation session model for
// Telegram bots: the State type, the durable Store contract and an in-memory
// Store used in tests and development. Bots declare their own states and bind
// handlers to them through Table.
package state
