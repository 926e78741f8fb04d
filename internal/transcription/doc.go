// Package transcription implements the speech-to-text port and its HTTP
// client for Whisper-compatible servers. The client uploads normalized WAV
// files as multipart form data, maps quality profiles onto decoder
// parameters, retries transient failures with exponential backoff and caps
// the number of in-flight requests.
package transcription
