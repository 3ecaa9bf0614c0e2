package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/session"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

// fakeBroker is the server end of an in-memory connection. handle runs on the
// broker's read loop for every frame the client sends.
type fakeBroker struct {
	conn   net.Conn
	handle func(b *fakeBroker, f frame.Frame)

	mu       sync.Mutex
	received []frame.Frame

	writeMu sync.Mutex
}

func (b *fakeBroker) run() {
	r := bufio.NewReader(b.conn)
	for {
		f, err := frame.ReadFrame(r, frame.DefaultLimits())
		if err != nil {
			return
		}
		b.mu.Lock()
		b.received = append(b.received, f)
		b.mu.Unlock()
		if b.handle != nil {
			b.handle(b, f)
		}
	}
}

func (b *fakeBroker) send(f frame.Frame) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = frame.WriteFrame(b.conn, f)
}

func (b *fakeBroker) sendRaw(p []byte) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_, _ = b.conn.Write(p)
}

func (b *fakeBroker) frames() []frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]frame.Frame(nil), b.received...)
}

func (b *fakeBroker) count(kind protocol.Kind) int {
	n := 0
	for _, f := range b.frames() {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func (b *fakeBroker) receipt(f frame.Frame) {
	id, ok := f.Header(protocol.HeaderReceipt)
	if !ok {
		return
	}
	b.send(frame.Frame{Kind: protocol.KindReceipt, Headers: map[string]string{protocol.HeaderReceiptID: id}})
}

// standardHandler accepts any login except passcode "bad", confirms every
// receipt, and closes the connection after DISCONNECT.
func standardHandler(b *fakeBroker, f frame.Frame) {
	switch f.Kind {
	case protocol.KindConnect:
		if pass, _ := f.Header(protocol.HeaderPasscode); pass == "bad" {
			b.send(frame.Frame{Kind: protocol.KindError, Headers: map[string]string{protocol.HeaderMessage: "Wrong password"}})
			return
		}
		b.send(frame.Frame{Kind: protocol.KindConnected, Headers: map[string]string{protocol.HeaderVersion: protocol.Version}})
	case protocol.KindDisconnect:
		b.receipt(f)
		_ = b.conn.Close()
	default:
		b.receipt(f)
	}
}

// withDefault runs override first and falls back to standardHandler when it
// reports the frame as unhandled.
func withDefault(override func(b *fakeBroker, f frame.Frame) bool) func(*fakeBroker, frame.Frame) {
	return func(b *fakeBroker, f frame.Frame) {
		if override(b, f) {
			return
		}
		standardHandler(b, f)
	}
}

type brokerHarness struct {
	mu      sync.Mutex
	handle  func(b *fakeBroker, f frame.Frame)
	brokers []*fakeBroker
}

func (h *brokerHarness) dialer() transport.Dialer {
	return func(ctx context.Context, addr string) (transport.Transport, error) {
		if addr == "unreachable:1" {
			return nil, errors.New("connection refused")
		}
		client, server := net.Pipe()
		h.mu.Lock()
		b := &fakeBroker{conn: server, handle: h.handle}
		h.brokers = append(h.brokers, b)
		h.mu.Unlock()
		go b.run()
		return transport.NewConn(client, transport.DefaultOptions()), nil
	}
}

func (h *brokerHarness) broker(t *testing.T) *fakeBroker {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.brokers) == 0 {
		t.Fatalf("no broker dialed")
	}
	return h.brokers[len(h.brokers)-1]
}

func testConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReceiptTimeout = 2 * time.Second
	cfg.LogoutTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, cfg session.Config, handle func(b *fakeBroker, f frame.Frame)) (*Session, *brokerHarness) {
	t.Helper()
	h := &brokerHarness{handle: handle}
	s := New(cfg, h.dialer())
	t.Cleanup(func() { _ = s.Close() })
	return s, h
}

func loggedIn(t *testing.T, handle func(b *fakeBroker, f frame.Frame)) (*Session, *fakeBroker) {
	t.Helper()
	s, h := newHarness(t, testConfig(), handle)
	if err := s.Login(context.Background(), "broker:7777", "alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return s, h.broker(t)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("dispatcher did not exit")
	}
}
