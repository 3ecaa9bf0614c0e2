// Package session owns the per-connection bookkeeping shared between the
// caller and the inbound dispatcher.
//
// Ownership boundary:
// - receipt id allocation and request/receipt correlation
// - topic <-> subscription id registry
// - session timeouts and the caller-side retry backoff
//
// Each structure carries its own lock; none of them call back into the client.
package session
