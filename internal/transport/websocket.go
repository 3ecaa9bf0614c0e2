package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
)

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// WebSocketDialer dials ws://addr<WSPath>. Every frame travels as one text
// message.
func WebSocketDialer(opts Options) Dialer {
	return func(ctx context.Context, addr string) (Transport, error) {
		if strings.TrimSpace(addr) == "" {
			return nil, ErrAddressRequired
		}
		path := opts.WSPath
		if path == "" {
			path = "/"
		}
		u := url.URL{Scheme: "ws", Host: addr, Path: path}
		dialer := websocket.Dialer{HandshakeTimeout: opts.ConnectTimeout}
		conn, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		if opts.Limits.MaxFrameBytes > 0 {
			conn.SetReadLimit(int64(opts.Limits.MaxFrameBytes))
		}
		log.Debug().Msgf("transport.WebSocket connected url=%q", u.String())
		return &wsTransport{conn: conn, writeTimeout: opts.WriteTimeout}, nil
	}
}

func (t *wsTransport) Send(p []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return t.mapErr(err)
		}
	}
	return t.mapErr(t.conn.WriteMessage(websocket.TextMessage, p))
}

func (t *wsTransport) Receive() ([]byte, error) {
	for {
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			return nil, t.mapErr(err)
		}
		msg = bytes.TrimLeft(msg, "\r\n")
		if len(msg) == 0 {
			continue
		}
		return bytes.TrimSuffix(msg, []byte{protocol.Terminator}), nil
	}
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrClosed
	}
	return err
}
