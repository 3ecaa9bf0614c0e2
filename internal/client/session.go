package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/event"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/observability"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/schema"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/session"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/transport"
)

// connectReceipt is the tracker key for the CONNECT reply. Generated receipt
// ids are numeric, so it never collides with one.
const connectReceipt = "connect"

// Session is one client connection to the broker.
//
// mu guards state, user, conn and done. Writes to conn are serialized by
// writeMu. The receipt tracker, subscription registry and event store carry
// their own locks.
type Session struct {
	cfg  session.Config
	dial transport.Dialer

	mu    sync.Mutex
	state State
	user  string
	conn  transport.Transport
	done  chan struct{}

	writeMu  sync.Mutex
	loggedIn atomic.Bool

	receipts *session.ReceiptTracker
	subs     *session.SubscriptionRegistry
	store    *event.Store
}

// New returns a disconnected session. A nil dial uses plain TCP.
func New(cfg session.Config, dial transport.Dialer) *Session {
	cfg = cfg.WithDefaults()
	if dial == nil {
		opts := transport.DefaultOptions()
		opts.ConnectTimeout = cfg.ConnectTimeout
		opts.WriteTimeout = cfg.WriteTimeout
		dial = transport.TCPDialer(opts)
	}
	return &Session{
		cfg:      cfg,
		dial:     dial,
		receipts: session.NewReceiptTracker(),
		subs:     session.NewSubscriptionRegistry(),
		store:    event.NewStore(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoggedIn reports the login flag without taking the session lock.
func (s *Session) LoggedIn() bool {
	return s.loggedIn.Load()
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Subscriptions returns the confirmed topics in sorted order.
func (s *Session) Subscriptions() []string {
	return s.subs.Topics()
}

func (s *Session) Store() *event.Store {
	return s.store
}

// Done is closed when the current dispatcher has exited. Before the first
// login it returns a closed channel.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Login dials addr, sends CONNECT and waits for the broker's answer. On
// CONNECTED the session is LoggedIn as user; on ERROR it is back to
// Disconnected and the server message is returned as a *ServerError.
func (s *Session) Login(ctx context.Context, addr, user, passcode string) error {
	if strings.TrimSpace(user) == "" {
		return ErrUserRequired
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	prev := s.done
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return ctx.Err()
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.dial(dialCtx, addr)
	cancel()
	if err != nil {
		s.setState(StateDisconnected)
		observability.RecordTransportFailure("dial")
		log.Warn().Msgf("client.Session dial failed addr=%q err=%v", addr, err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.receipts.Reset()
	pending, err := s.receipts.Register(connectReceipt)
	if err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.user = ""
	s.setStateLocked(StateAwaitingAuth)
	s.mu.Unlock()
	go s.dispatch(conn, done)

	connect := frame.Connect(user, passcode, s.cfg.Host)
	b, err := encode(connect)
	if err == nil {
		err = s.write(conn, connect.Kind, b)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	}
	if err != nil {
		s.teardown(conn, err)
		<-done
		return err
	}

	fr, err := s.await(ctx, pending, s.cfg.ReceiptTimeout)
	if err != nil {
		s.teardown(conn, err)
		<-done
		log.Warn().Msgf("client.Session login failed user=%q err=%v", user, err)
		return err
	}

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		<-done
		return ErrConnectionLost
	}
	s.user = user
	s.loggedIn.Store(true)
	s.setStateLocked(StateLoggedIn)
	s.mu.Unlock()

	version, _ := fr.Header(protocol.HeaderVersion)
	log.Info().Msgf("client.Session login user=%q addr=%q version=%q", user, addr, version)
	return nil
}

// Logout sends DISCONNECT and waits, bounded by the logout timeout, for its
// receipt. The transport is released and the dispatcher awaited in every case;
// a connection that closes before the receipt arrives counts as success.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoggedIn {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	conn, done, user := s.conn, s.done, s.user
	s.loggedIn.Store(false)
	s.setStateLocked(StateLoggingOut)
	s.mu.Unlock()

	receipt := s.receipts.NextID()
	p, err := s.submit(conn, frame.Disconnect(receipt), receipt)
	if err == nil {
		_, err = s.await(ctx, p, s.cfg.LogoutTimeout)
	}
	s.teardown(conn, ErrSessionClosed)
	<-done

	if errors.Is(err, ErrConnectionLost) {
		err = nil
	}
	if err != nil {
		log.Warn().Msgf("client.Session logout user=%q err=%v", user, err)
		return err
	}
	log.Info().Msgf("client.Session logout user=%q", user)
	return nil
}

// Subscribe joins topic. The topic is registered only once the broker
// confirms.
func (s *Session) Subscribe(ctx context.Context, topic string) error {
	if err := validTopic(topic); err != nil {
		return err
	}
	conn, user, err := s.active()
	if err != nil {
		return err
	}
	if s.subs.Has(topic) {
		return ErrAlreadySubscribed
	}

	id := session.SubscriptionID(user, topic)
	receipt := s.receipts.NextID()
	if _, err := s.request(ctx, conn, frame.Subscribe(frame.Destination(topic), id, receipt), receipt); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return ErrConnectionLost
	}
	if err := s.subs.Add(topic, id); err != nil {
		return err
	}
	log.Info().Msgf("client.Session subscribe topic=%q id=%s", topic, id)
	return nil
}

// Unsubscribe leaves topic. NotSubscribed is returned without a network call.
func (s *Session) Unsubscribe(ctx context.Context, topic string) error {
	conn, _, err := s.active()
	if err != nil {
		return err
	}
	id, ok := s.subs.ID(topic)
	if !ok {
		return ErrNotSubscribed
	}

	receipt := s.receipts.NextID()
	if _, err := s.request(ctx, conn, frame.Unsubscribe(id, receipt), receipt); err != nil {
		return err
	}
	if _, err := s.subs.Remove(topic); err != nil {
		// cleared by a concurrent teardown
		log.Debug().Msgf("client.Session unsubscribe topic=%q already cleared", topic)
	}
	log.Info().Msgf("client.Session unsubscribe topic=%q id=%s", topic, id)
	return nil
}

// Report publishes e as the session user and stores it once the broker
// confirms.
func (s *Session) Report(ctx context.Context, e event.Event) error {
	return s.ReportAll(ctx, []event.Event{e})
}

// ReportAll publishes events as the session user. Every SEND is written before
// any receipt is awaited; each confirmed event is stored, and the failures are
// returned joined.
func (s *Session) ReportAll(ctx context.Context, events []event.Event) error {
	conn, user, err := s.active()
	if err != nil {
		return err
	}

	type inflight struct {
		e event.Event
		p *session.Pending
	}
	flights := make([]inflight, 0, len(events))
	var errs []error
	for _, e := range events {
		stamped := e.WithOwner(user)
		if err := validTopic(stamped.Channel); err != nil {
			errs = append(errs, fmt.Errorf("report %q: %w", stamped.Name, err))
			continue
		}
		if err := event.Validate(stamped); err != nil {
			errs = append(errs, fmt.Errorf("report %q: %w", stamped.Name, err))
			continue
		}
		receipt := s.receipts.NextID()
		f := frame.Send(frame.Destination(stamped.Channel), receipt, event.EncodeBody(stamped))
		p, err := s.submit(conn, f, receipt)
		if err != nil {
			errs = append(errs, fmt.Errorf("report %q: %w", stamped.Name, err))
			if errors.Is(err, ErrConnectionLost) {
				break
			}
			continue
		}
		flights = append(flights, inflight{e: stamped, p: p})
	}

	for _, fl := range flights {
		if _, err := s.await(ctx, fl.p, s.cfg.ReceiptTimeout); err != nil {
			errs = append(errs, fmt.Errorf("report %q: %w", fl.e.Name, err))
			continue
		}
		s.store.Add(fl.e)
		observability.RecordEventStored(observability.SourceLocal)
		log.Debug().Msgf("client.Session report stored channel=%q event=%q", fl.e.Channel, fl.e.Name)
	}
	return errors.Join(errs...)
}

// Close tears the session down without DISCONNECT and waits for the
// dispatcher. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.mu.Unlock()
	if conn != nil {
		s.teardown(conn, ErrSessionClosed)
	}
	if done != nil {
		<-done
	}
	return nil
}

func (s *Session) active() (transport.Transport, string, error) {
	if !s.loggedIn.Load() {
		return nil, "", ErrNotLoggedIn
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoggedIn || s.conn == nil {
		return nil, "", ErrNotLoggedIn
	}
	return s.conn, s.user, nil
}

// request submits f and waits for the reply tracked under receipt.
func (s *Session) request(ctx context.Context, conn transport.Transport, f frame.Frame, receipt string) (frame.Frame, error) {
	p, err := s.submit(conn, f, receipt)
	if err != nil {
		return frame.Frame{}, err
	}
	return s.await(ctx, p, s.cfg.ReceiptTimeout)
}

// submit registers receipt and writes f. Encoding problems are returned
// before anything is registered; a failed write tears the connection down.
func (s *Session) submit(conn transport.Transport, f frame.Frame, receipt string) (*session.Pending, error) {
	b, err := encode(f)
	if err != nil {
		return nil, err
	}
	p, err := s.receipts.Register(receipt)
	if err != nil {
		return nil, err
	}
	if err := s.write(conn, f.Kind, b); err != nil {
		s.receipts.Cancel(receipt)
		lost := fmt.Errorf("%w: %w", ErrConnectionLost, err)
		s.teardown(conn, lost)
		return nil, lost
	}
	return p, nil
}

// await waits for p, bounded by timeout and ctx. An ERROR reply becomes a
// *ServerError.
func (s *Session) await(ctx context.Context, p *session.Pending, timeout time.Duration) (frame.Frame, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	fr, err := p.Wait(waitCtx)
	if err != nil {
		if waitCtx.Err() == nil {
			return frame.Frame{}, err
		}
		s.receipts.Cancel(p.ID())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame.Frame{}, ctxErr
		}
		return frame.Frame{}, fmt.Errorf("%w: receipt=%s after %s", ErrRequestTimeout, p.ID(), timeout)
	}
	if fr.Kind == protocol.KindError {
		return fr, newServerError(fr)
	}
	return fr, nil
}

func encode(f frame.Frame) ([]byte, error) {
	if err := schema.Validate(f); err != nil {
		return nil, err
	}
	return frame.Encode(f)
}

func (s *Session) write(conn transport.Transport, kind protocol.Kind, b []byte) error {
	s.writeMu.Lock()
	err := conn.Send(b)
	s.writeMu.Unlock()
	if err != nil {
		observability.RecordTransportFailure("write")
		log.Error().Msgf("client.Session write failed kind=%s err=%v", kind, err)
		return err
	}
	observability.RecordFrameSent(kind.String())
	log.Debug().Msgf("client.Session sent kind=%s bytes=%d", kind, len(b))
	return nil
}

// teardown releases conn if it is still the session's connection: pending
// requests fail with cause, the registry and username are cleared, and the
// session returns to Disconnected. It reports whether it did anything.
func (s *Session) teardown(conn transport.Transport, cause error) bool {
	s.mu.Lock()
	if conn == nil || s.conn != conn {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	s.user = ""
	s.loggedIn.Store(false)
	s.subs.Clear()
	s.receipts.FailAll(cause)
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if err := conn.Close(); err != nil {
		log.Debug().Msgf("client.Session close transport err=%v", err)
	}
	log.Debug().Msgf("client.Session teardown cause=%v", cause)
	return true
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(st)
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	log.Debug().Msgf("client.Session state %s -> %s", s.state, st)
	s.state = st
	observability.RecordStateTransition(st.String())
}
