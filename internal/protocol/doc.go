// Package protocol defines the JSON messages the server sends on the
// streaming channel and returns from the batch endpoint: transcripts tagged
// with their speaker and structured error reports.
package protocol
