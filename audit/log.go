package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"cryobank/contract"
)

// Sink receives audit events. The write pipeline treats append failures as
// surfaced warnings, never as write rollbacks.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Log is the canonical line-delimited JSON audit log on disk.
type Log struct {
	mu   sync.Mutex
	path string
}

func NewLog(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string { return l.path }

func (l *Log) Append(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: create audit dir: %v", contract.ErrPersistence, err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open audit log: %v", contract.ErrPersistence, err)
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal audit event: %v", contract.ErrPersistence, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: append audit event: %v", contract.ErrPersistence, err)
	}
	return nil
}

// Read returns events in chronological order. Malformed lines are skipped,
// not fatal: a partially damaged log must not block reading the rest.
func (l *Log) Read(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open audit log: %v", contract.ErrPersistence, err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read audit log: %v", contract.ErrPersistence, err)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// MultiSink fans one event out to several sinks. The first error wins but
// remaining sinks still receive the event.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, ev Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Append(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
