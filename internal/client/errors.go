package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/event"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/session"
)

var (
	ErrIllegalState    = errors.New("client: illegal state")
	ErrAlreadyLoggedIn = fmt.Errorf("%w: already logged in", ErrIllegalState)
	ErrNotLoggedIn     = fmt.Errorf("%w: not logged in", ErrIllegalState)

	ErrAlreadySubscribed = session.ErrAlreadySubscribed
	ErrNotSubscribed     = session.ErrNotSubscribed
	ErrInvalidEvent      = event.ErrInvalidEvent

	ErrConnectionFailed = errors.New("client: connection failed")
	ErrConnectionLost   = errors.New("client: connection lost")
	ErrServer           = errors.New("client: server error")
	ErrRequestTimeout   = errors.New("client: request timed out")
	ErrSessionClosed    = errors.New("client: session closed")
	ErrInvalidTopic     = errors.New("client: invalid topic")
	ErrUserRequired     = errors.New("client: user required")
)

// ServerError is an ERROR frame matched to a request.
type ServerError struct {
	Message string
	Body    string
}

func newServerError(fr frame.Frame) *ServerError {
	msg, _ := fr.Header(protocol.HeaderMessage)
	return &ServerError{Message: msg, Body: fr.Body}
}

func (e *ServerError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("client: server error: %s", e.Message)
	}
	return fmt.Sprintf("client: server error: %s: %s", e.Message, body)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

func validTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, " \t\r\n\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}
