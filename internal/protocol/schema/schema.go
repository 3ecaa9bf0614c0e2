package schema

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
)

// Requirement is one header a frame kind must carry. Fixed, when set, is the
// only accepted value.
type Requirement struct {
	Header string
	Fixed  string
}

type ValidationError struct {
	Kind   protocol.Kind
	Header string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Header == "" {
		return fmt.Sprintf("schema: kind=%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s header=%s: %s", e.Kind, e.Header, e.Reason)
}

var requirements = map[protocol.Kind][]Requirement{
	protocol.KindConnect: {
		{Header: protocol.HeaderLogin},
		{Header: protocol.HeaderPasscode},
		{Header: protocol.HeaderAcceptVersion, Fixed: protocol.Version},
		{Header: protocol.HeaderHost},
	},
	protocol.KindSubscribe: {
		{Header: protocol.HeaderDestination},
		{Header: protocol.HeaderID},
		{Header: protocol.HeaderReceipt},
	},
	protocol.KindUnsubscribe: {
		{Header: protocol.HeaderID},
		{Header: protocol.HeaderReceipt},
	},
	protocol.KindSend: {
		{Header: protocol.HeaderDestination},
	},
	protocol.KindDisconnect: {},
	protocol.KindConnected:  {},
	protocol.KindReceipt: {
		{Header: protocol.HeaderReceiptID},
	},
	protocol.KindError: {
		{Header: protocol.HeaderMessage},
	},
	protocol.KindMessage: {
		{Header: protocol.HeaderDestination},
	},
}

// Validate enforces the required headers for f.Kind. Unknown headers are ignored.
func Validate(f frame.Frame) error {
	reqs, ok := requirements[f.Kind]
	if !ok {
		log.Error().Msgf("schema.Validate unknown kind=%q", string(f.Kind))
		return ValidationError{Kind: f.Kind, Reason: "unknown kind"}
	}
	for _, req := range reqs {
		v, found := f.Header(req.Header)
		if !found {
			log.Debug().Msgf("schema.Validate missing header kind=%s header=%s", f.Kind, req.Header)
			return ValidationError{Kind: f.Kind, Header: req.Header, Reason: "missing required header"}
		}
		if req.Fixed != "" && v != req.Fixed {
			log.Debug().Msgf("schema.Validate bad value kind=%s header=%s got=%q want=%q", f.Kind, req.Header, v, req.Fixed)
			return ValidationError{Kind: f.Kind, Header: req.Header, Reason: "unexpected value"}
		}
	}
	return nil
}
