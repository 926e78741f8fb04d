// Package vad provides an energy-based voice activity gate. Fragments whose
// windows all fall below the configured RMS threshold are reported as silent
// so the caller can skip transcription.
package vad
