// Package client implements the broker session: login, subscription
// management and confirmed event reports over a single transport, with one
// background dispatcher routing inbound frames.
package client
