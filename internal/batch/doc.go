// Package batch transcribes complete uploaded recordings with the accurate
// profile. It is stateless; every request persists its upload to the
// workspace and removes both the upload and the normalized file before
// returning.
package batch
