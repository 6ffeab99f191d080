package llm

import (
	"context"
	"fmt"
	"sync"

	"cryobank/contract"
)

// Script is a deterministic Client for tests: it replays a fixed sequence
// of responses, one per provider call, and records every request it saw.
type Script struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	calls     int
	Requests  []Request
}

var _ Client = (*Script)(nil)

func NewScript(responses ...*Response) *Script {
	return &Script{responses: responses}
}

// FailAt makes the nth call (zero-based) return err instead of a response.
func (s *Script) FailAt(n int, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.errs) <= n {
		s.errs = append(s.errs, nil)
	}
	s.errs[n] = err
	return s
}

func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Script) Chat(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next(req)
}

func (s *Script) Stream(_ context.Context, req Request) (<-chan StreamEvent, error) {
	s.mu.Lock()
	resp, err := s.next(req)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	events := make(chan StreamEvent, 2)
	if resp.Content != "" {
		events <- StreamEvent{TextDelta: resp.Content}
	}
	events <- StreamEvent{Done: resp}
	close(events)
	return events, nil
}

func (s *Script) next(req Request) (*Response, error) {
	idx := s.calls
	s.calls++
	s.Requests = append(s.Requests, req)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return nil, fmt.Errorf("%w: scripted client exhausted after %d calls",
			contract.ErrModelInvoke, len(s.responses))
	}
	return s.responses[idx], nil
}
