// Package conversation holds the bounded, role-tagged message history of
// each streaming session. Every backend keeps at most the configured window
// of messages per session, dropping the oldest first, and linearizes
// appends for a single session.
package conversation
