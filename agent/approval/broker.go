// Package approval carries questions and confirmation requests from the
// reasoning loop to whatever surface a human is watching, and the answers
// back. The loop blocks on a bounded wait; nothing here touches documents.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryobank/contract"
)

const DefaultTimeout = 300 * time.Second

var (
	ErrTimeout   = errors.New("approval: no answer before deadline")
	ErrCancelled = errors.New("approval: request cancelled")
	ErrBusy      = errors.New("approval: another request is already pending")
)

// Kind distinguishes free-form questions from yes/no confirmations.
type Kind string

const (
	KindQuestion Kind = "question"
	KindConfirm  Kind = "confirm"
)

// Request is one outstanding ask.
type Request struct {
	ID      string
	Kind    Kind
	Prompt  string
	Detail  map[string]any
	Actor   contract.ActorContext
	AskedAt time.Time
}

// Answer is the human's response.
type Answer struct {
	Text     string
	Approved bool
}

// Broker hands one request at a time to an approval surface. Ask blocks
// until Answer, Cancel, timeout, or context cancellation.
type Broker struct {
	mu      sync.Mutex
	pending *pendingRequest
	timeout time.Duration
	// Notify fires on a new request so a surface can prompt the human.
	notify func(Request)
}

type pendingRequest struct {
	req  Request
	done chan Answer
}

func NewBroker(timeout time.Duration, notify func(Request)) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{timeout: timeout, notify: notify}
}

// Ask publishes the request and waits for its answer.
func (b *Broker) Ask(ctx context.Context, req Request) (Answer, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.AskedAt = time.Now()

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return Answer{}, fmt.Errorf("%w: %q", ErrBusy, b.pending.req.Prompt)
	}
	pending := &pendingRequest{req: req, done: make(chan Answer, 1)}
	b.pending = pending
	b.mu.Unlock()

	if b.notify != nil {
		b.notify(req)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	defer b.clear(pending)

	select {
	case answer, ok := <-pending.done:
		if !ok {
			return Answer{}, ErrCancelled
		}
		return answer, nil
	case <-timer.C:
		return Answer{}, fmt.Errorf("%w (waited %s)", ErrTimeout, b.timeout)
	case <-ctx.Done():
		return Answer{}, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

// Pending returns the outstanding request, if any.
func (b *Broker) Pending() (Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return Request{}, false
	}
	return b.pending.req, true
}

// Answer resolves the pending request. The id guards against answering a
// request that already timed out and was replaced.
func (b *Broker) Answer(id string, answer Answer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil || (id != "" && b.pending.req.ID != id) {
		return fmt.Errorf("%w: no pending request %q", contract.ErrNotFound, id)
	}
	b.pending.done <- answer
	b.pending = nil
	return nil
}

// Cancel abandons the pending request; the asker gets ErrCancelled.
func (b *Broker) Cancel(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil || (id != "" && b.pending.req.ID != id) {
		return fmt.Errorf("%w: no pending request %q", contract.ErrNotFound, id)
	}
	close(b.pending.done)
	b.pending = nil
	return nil
}

// clear drops the request if it is still ours (timeout/ctx paths).
func (b *Broker) clear(p *pendingRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == p {
		b.pending = nil
	}
}
