// Package transport provides the byte-stream connections the client session
// runs over. One Send carries one encoded frame; one Receive yields one frame
// with its terminator stripped.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
)

var (
	ErrClosed          = errors.New("transport: closed")
	ErrUnknownKind     = errors.New("transport: unknown transport kind")
	ErrAddressRequired = errors.New("transport: address required")
)

// Transport is a connected byte stream. Send is not safe for concurrent use;
// Close may be called at any time, more than once, and unblocks Receive.
type Transport interface {
	Send(p []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens a Transport to addr ("host:port").
type Dialer func(ctx context.Context, addr string) (Transport, error)

const (
	KindTCP       = "tcp"
	KindWebSocket = "ws"
)

// Options configures the dialers.
type Options struct {
	Kind           string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	Limits         frame.Limits
	// WSPath is the request path used by the WebSocket dialer.
	WSPath string
}

func DefaultOptions() Options {
	return Options{
		Kind:           KindTCP,
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		Limits:         frame.DefaultLimits(),
		WSPath:         "/",
	}
}

// NewDialer returns the dialer for opts.Kind.
func NewDialer(opts Options) (Dialer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindTCP:
		return TCPDialer(opts), nil
	case KindWebSocket, "websocket":
		return WebSocketDialer(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}
