// Package audio normalizes client audio for the transcription engine.
// It runs the external ffmpeg filter through a bounded worker pool, inspects the
// resulting 16 kHz mono PCM WAV containers, and manages the temp files each
// fragment or upload lives in.
package audio
