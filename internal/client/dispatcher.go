package client

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/event"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/observability"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/schema"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

// dispatch reads frames from conn until it fails. A read or decode failure
// tears the session down with ErrConnectionLost. done is closed on exit.
func (s *Session) dispatch(conn transport.Transport, done chan struct{}) {
	defer close(done)
	for {
		raw, err := conn.Receive()
		if err != nil {
			if s.teardown(conn, fmt.Errorf("%w: %w", ErrConnectionLost, err)) {
				observability.RecordTransportFailure("read")
				log.Error().Msgf("client.Session read failed err=%v", err)
			}
			return
		}
		fr, err := frame.Decode(raw)
		if err != nil {
			observability.RecordTransportFailure("decode")
			log.Error().Msgf("client.Session decode failed bytes=%d err=%v", len(raw), err)
			s.teardown(conn, fmt.Errorf("%w: %w", ErrConnectionLost, err))
			return
		}
		observability.RecordFrameReceived(fr.Kind.String())
		log.Debug().Msgf("client.Session received kind=%s", fr.Kind)
		s.route(fr)
	}
}

func (s *Session) route(fr frame.Frame) {
	// ERROR frames are routed even without a message header.
	if err := schema.Validate(fr); err != nil && fr.Kind != protocol.KindError {
		log.Warn().Msgf("client.Session discard invalid frame err=%v", err)
		return
	}

	switch fr.Kind {
	case protocol.KindConnected:
		if s.State() != StateAwaitingAuth {
			log.Warn().Msg("client.Session discard CONNECTED outside login")
			return
		}
		s.receipts.Resolve(connectReceipt, fr)
	case protocol.KindReceipt:
		id, _ := fr.Header(protocol.HeaderReceiptID)
		s.receipts.Resolve(id, fr)
	case protocol.KindError:
		s.routeError(fr)
	case protocol.KindMessage:
		s.deliver(fr)
	default:
		log.Warn().Msgf("client.Session discard client-only kind=%s", fr.Kind)
	}
}

// routeError matches an ERROR frame to a request: by receipt-id when present,
// otherwise to the CONNECT during login, otherwise to the oldest outstanding
// request, since the broker answers in order.
func (s *Session) routeError(fr frame.Frame) {
	msg, _ := fr.Header(protocol.HeaderMessage)
	if id, ok := fr.Header(protocol.HeaderReceiptID); ok {
		if !s.receipts.Resolve(id, fr) {
			log.Warn().Msgf("client.Session unsolicited error receipt=%q message=%q", id, msg)
		}
		return
	}
	if s.State() == StateAwaitingAuth && s.receipts.Resolve(connectReceipt, fr) {
		return
	}
	if id, ok := s.receipts.ResolveOldest(fr); ok {
		log.Debug().Msgf("client.Session error matched oldest receipt=%s message=%q", id, msg)
		return
	}
	log.Warn().Msgf("client.Session unsolicited error message=%q", msg)
}

// deliver stores a pushed report under the channel named by its destination.
// The session user's own reports are stored when confirmed, so their echo is
// skipped. A report whose receipt times out after its echo arrived is
// therefore not stored at all.
func (s *Session) deliver(fr frame.Frame) {
	dest, _ := fr.Header(protocol.HeaderDestination)
	e, err := event.ParseBody(fr.Body)
	if err != nil {
		log.Warn().Msgf("client.Session discard message destination=%q err=%v", dest, err)
		return
	}
	e.Channel = frame.Channel(dest)
	if sub, ok := fr.Header(protocol.HeaderSubscription); ok {
		if topic, known := s.subs.Topic(sub); !known || topic != e.Channel {
			log.Debug().Msgf("client.Session message subscription=%q topic=%q destination=%q", sub, topic, dest)
		}
	}
	if e.Owner == s.Username() {
		log.Debug().Msgf("client.Session skip own report channel=%q event=%q", e.Channel, e.Name)
		return
	}
	s.store.Add(e)
	observability.RecordEventStored(observability.SourceRemote)
	log.Debug().Msgf("client.Session stored channel=%q owner=%q event=%q", e.Channel, e.Owner, e.Name)
}
