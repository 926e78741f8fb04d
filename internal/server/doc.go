// Package server exposes the service over HTTP. It upgrades /ws requests to
// WebSocket streaming sessions, accepts one-shot uploads on /transcribe and
// serves the browser client together with monitoring endpoints.
package server
