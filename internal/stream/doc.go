// Package stream runs streaming voice sessions. A Session owns one
// connection: it receives audio fragments in order, transcodes and
// transcribes each one, suppresses empty or repeated transcripts, records
// new utterances in the conversation store and answers with a generated
// reply. Temporary files are removed after every fragment on every path.
// The Manager registers sessions, enforces the session limit, exposes
// monitoring snapshots and tears sessions down when their connection ends.
package stream
