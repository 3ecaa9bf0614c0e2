package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
)

type tcpTransport struct {
	conn         net.Conn
	r            *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// TCPDialer dials plain TCP connections.
func TCPDialer(opts Options) Dialer {
	return func(ctx context.Context, addr string) (Transport, error) {
		if strings.TrimSpace(addr) == "" {
			return nil, ErrAddressRequired
		}
		dialer := net.Dialer{Timeout: opts.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		log.Debug().Msgf("transport.TCP connected addr=%q local=%s", addr, conn.LocalAddr())
		return NewConn(conn, opts), nil
	}
}

// NewConn wraps an established stream connection.
func NewConn(conn net.Conn, opts Options) Transport {
	limits := opts.Limits
	if limits.MaxFrameBytes == 0 {
		limits = frame.DefaultLimits()
	}
	return &tcpTransport{
		conn:         conn,
		r:            bufio.NewReader(conn),
		limits:       limits,
		writeTimeout: opts.WriteTimeout,
	}
}

func (t *tcpTransport) Send(p []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return t.mapErr(err)
		}
	}
	_, err := t.conn.Write(p)
	return t.mapErr(err)
}

func (t *tcpTransport) Receive() ([]byte, error) {
	raw, err := frame.ReadRaw(t.r, t.limits)
	return raw, t.mapErr(err)
}

func (t *tcpTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *tcpTransport) mapErr(err error) error {
	if err != nil && errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
