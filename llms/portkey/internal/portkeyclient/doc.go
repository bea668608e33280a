// Package portkeyclient provides the HTTP client for the Portkey AI
// gateway. It handles request serialization for the chat and legacy
// completion endpoints, SSE chunk streaming, error mapping, and the
// x-portkey-* routing headers (API key, config document, trace ID,
// metadata).
//
// The portkey adapter builds on this client; it is not part of the
// public API surface.
package portkeyclient
