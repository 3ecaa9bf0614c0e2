package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/observability"
	"github.com/tal-sch/Emergency-Subscription-Client-Server/internal/protocol/frame"
)

var (
	ErrInvalidReceipt   = errors.New("session: invalid receipt id")
	ErrDuplicateReceipt = errors.New("session: receipt id already outstanding")
	ErrTrackerClosed    = errors.New("session: receipt tracker closed")
)

// Pending is the completion handle for one outstanding request. It completes
// exactly once, either with the reply frame or with an error.
type Pending struct {
	id   string
	seq  uint64
	done chan struct{}
	once sync.Once
	fr   frame.Frame
	err  error
}

func newPending(id string, seq uint64) *Pending {
	return &Pending{id: id, seq: seq, done: make(chan struct{})}
}

func (p *Pending) ID() string {
	return p.id
}

// Done is closed once the request has completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until completion or until ctx ends.
func (p *Pending) Wait(ctx context.Context) (frame.Frame, error) {
	select {
	case <-p.done:
		return p.fr, p.err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

func (p *Pending) complete(fr frame.Frame, err error) bool {
	completed := false
	p.once.Do(func() {
		p.fr = fr
		p.err = err
		completed = true
		close(p.done)
	})
	return completed
}

// ReceiptTracker maps outstanding receipt ids to their completion handles.
// Ids come from a single counter that lives as long as the tracker, and are
// unique among outstanding requests.
type ReceiptTracker struct {
	mu      sync.Mutex
	pending map[string]*Pending
	counter uint64
	seq     uint64
	closed  error
}

func NewReceiptTracker() *ReceiptTracker {
	return &ReceiptTracker{
		pending: make(map[string]*Pending),
	}
}

// NextID returns a receipt id not currently outstanding.
func (t *ReceiptTracker) NextID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		t.counter++
		id := strconv.FormatUint(t.counter, 10)
		if _, taken := t.pending[id]; !taken {
			return id
		}
	}
}

// Register records a pending completion for id. After FailAll, Register fails
// with the error FailAll was given until Reset is called.
func (t *ReceiptTracker) Register(id string) (*Pending, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidReceipt
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	if _, ok := t.pending[id]; ok {
		return nil, ErrDuplicateReceipt
	}
	t.seq++
	p := newPending(id, t.seq)
	t.pending[id] = p
	observability.SetReceiptsOutstanding(len(t.pending))
	return p, nil
}

// Resolve completes the pending entry for id with fr. Unmatched receipts are
// logged and discarded.
func (t *ReceiptTracker) Resolve(id string, fr frame.Frame) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	n := len(t.pending)
	t.mu.Unlock()

	if !ok {
		log.Warn().Msgf("session.ReceiptTracker discard unmatched receipt id=%q kind=%s", id, fr.Kind)
		observability.RecordReceiptUnmatched()
		return false
	}
	observability.SetReceiptsOutstanding(n)
	p.complete(fr, nil)
	return true
}

// ResolveOldest completes the longest-outstanding entry with fr. It is used for
// replies that carry no receipt id.
func (t *ReceiptTracker) ResolveOldest(fr frame.Frame) (string, bool) {
	t.mu.Lock()
	var oldest *Pending
	for _, p := range t.pending {
		if oldest == nil || p.seq < oldest.seq {
			oldest = p
		}
	}
	if oldest != nil {
		delete(t.pending, oldest.id)
	}
	n := len(t.pending)
	t.mu.Unlock()

	if oldest == nil {
		return "", false
	}
	observability.SetReceiptsOutstanding(n)
	oldest.complete(fr, nil)
	return oldest.id, true
}

// Cancel drops id without completing it. Used when the caller stops waiting.
func (t *ReceiptTracker) Cancel(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	n := len(t.pending)
	t.mu.Unlock()
	observability.SetReceiptsOutstanding(n)
}

// FailAll completes every pending entry with err and rejects further
// registrations until Reset.
func (t *ReceiptTracker) FailAll(err error) int {
	if err == nil {
		err = ErrTrackerClosed
	}
	t.mu.Lock()
	items := t.pending
	t.pending = make(map[string]*Pending)
	t.closed = err
	t.mu.Unlock()

	observability.SetReceiptsOutstanding(0)
	for _, p := range items {
		p.complete(frame.Frame{}, err)
	}
	if len(items) > 0 {
		log.Debug().Msgf("session.ReceiptTracker failed pending=%d err=%v", len(items), err)
	}
	return len(items)
}

// Reset reopens the tracker for a new connection. The id counter is kept.
func (t *ReceiptTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = nil
}

func (t *ReceiptTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
