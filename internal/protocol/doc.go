// Package protocol owns the STOMP wire contract shared by the client packages.
//
// Ownership boundary:
// - frame kinds and header names
// - protocol constants (version, virtual host, terminator)
// - frame codec (package frame)
// - per-kind header requirements (package schema)
package protocol
