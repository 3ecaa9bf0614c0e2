package frame

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
)

var (
	ErrMalformedFrame = errors.New("frame: malformed frame")
	ErrFrameTooLarge  = errors.New("frame: frame too large")
	ErrInvalidHeader  = errors.New("frame: invalid header")
	ErrBodyTerminator = errors.New("frame: body contains terminator")
	ErrUnknownKind    = errors.New("frame: unknown kind")
)

// Frame is one protocol message unit. Frames are passed by value and never
// mutated after construction.
type Frame struct {
	Kind    protocol.Kind
	Headers map[string]string
	Body    string
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxFrameBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 1024 * 1024,
	}
}

// New builds a frame with a private copy of headers.
func New(kind protocol.Kind, headers map[string]string, body string) Frame {
	h := make(map[string]string, len(headers))
	maps.Copy(h, headers)
	return Frame{Kind: kind, Headers: h, Body: body}
}

// Header returns the value for key and whether it was present.
func (f Frame) Header(key string) (string, bool) {
	v, ok := f.Headers[key]
	return v, ok
}

// Equal compares kind, header set and body. A nil header map equals an empty one.
func (f Frame) Equal(o Frame) bool {
	return f.Kind == o.Kind && f.Body == o.Body && maps.Equal(f.Headers, o.Headers)
}

func (f Frame) String() string {
	return fmt.Sprintf("%s headers=%d body=%dB", f.Kind, len(f.Headers), len(f.Body))
}

// Encode serializes f to wire bytes including the terminator.
// Headers are written in sorted key order.
func Encode(f Frame) ([]byte, error) {
	if !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(f.Kind))
	}
	if strings.IndexByte(f.Body, protocol.Terminator) >= 0 {
		return nil, ErrBodyTerminator
	}

	keys := slices.Sorted(maps.Keys(f.Headers))
	var buf bytes.Buffer
	buf.Grow(len(f.Kind) + len(f.Body) + 16*len(keys) + 3)
	buf.WriteString(string(f.Kind))
	buf.WriteByte('\n')
	for _, k := range keys {
		v := f.Headers[k]
		if strings.ContainsAny(k, ":\n") || strings.IndexByte(k, protocol.Terminator) >= 0 {
			return nil, fmt.Errorf("%w: key %q", ErrInvalidHeader, k)
		}
		if strings.IndexByte(v, '\n') >= 0 || strings.IndexByte(v, protocol.Terminator) >= 0 {
			return nil, fmt.Errorf("%w: value for %q", ErrInvalidHeader, k)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteString(f.Body)
	buf.WriteByte(protocol.Terminator)
	return buf.Bytes(), nil
}

// Decode parses one frame. The trailing terminator is optional; any other
// terminator byte in b is an error.
func Decode(b []byte) (Frame, error) {
	if n := len(b); n > 0 && b[n-1] == protocol.Terminator {
		b = b[:n-1]
	}
	if bytes.IndexByte(b, protocol.Terminator) >= 0 {
		return Frame{}, fmt.Errorf("%w: data after terminator", ErrMalformedFrame)
	}
	s := string(b)

	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return Frame{}, fmt.Errorf("%w: missing command line", ErrMalformedFrame)
	}
	command := strings.TrimSuffix(s[:nl], "\r")
	kind, ok := protocol.ParseKind(command)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %w: %q", ErrMalformedFrame, ErrUnknownKind, command)
	}
	s = s[nl+1:]

	headers := make(map[string]string)
	for {
		nl = strings.IndexByte(s, '\n')
		if nl < 0 {
			return Frame{}, fmt.Errorf("%w: header block not terminated", ErrMalformedFrame)
		}
		line := s[:nl]
		s = s[nl+1:]
		if line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return Frame{}, fmt.Errorf("%w: header line %q has no colon", ErrMalformedFrame, line)
		}
		// repeated headers: first occurrence wins
		if _, dup := headers[key]; !dup {
			headers[key] = value
		}
	}

	return Frame{Kind: kind, Headers: headers, Body: s}, nil
}

// ReadRaw reads one terminator-delimited frame from r and returns it without
// the terminator. Blank lines between frames are skipped.
func ReadRaw(r *bufio.Reader, limits Limits) ([]byte, error) {
	for {
		b, err := r.Peek(1)
		if err != nil {
			return nil, err
		}
		if b[0] != '\n' && b[0] != '\r' {
			break
		}
		_, _ = r.ReadByte()
	}

	var out []byte
	for {
		chunk, err := r.ReadSlice(protocol.Terminator)
		if limits.MaxFrameBytes > 0 && uint64(len(out)+len(chunk)) > limits.MaxFrameBytes {
			return nil, ErrFrameTooLarge
		}
		out = append(out, chunk...)
		if err == nil {
			return out[:len(out)-1], nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(out) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// ReadFrame reads and decodes one frame from r.
func ReadFrame(r *bufio.Reader, limits Limits) (Frame, error) {
	raw, err := ReadRaw(r, limits)
	if err != nil {
		return Frame{}, err
	}
	return Decode(raw)
}

// WriteFrame encodes f and writes it to w in a single call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
