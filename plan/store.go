package plan

import (
	"fmt"
	"sync"

	"cryobank/contract"
)

// Store is the in-memory staged queue. The change callback fires after
// every mutation with a snapshot, so approval surfaces can re-render.
type Store struct {
	mu       sync.Mutex
	items    []Item
	onChange func([]Item)
}

func NewStore(onChange func([]Item)) *Store {
	return &Store{onChange: onChange}
}

func (s *Store) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Add appends an item unless its dedup key is already staged.
func (s *Store) Add(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Key() == item.Key() {
			return fmt.Errorf("%w: %q is already staged", contract.ErrConflict, item.Describe())
		}
	}
	s.items = append(s.items, item)
	s.notify()
	return nil
}

// RemoveByIndex drops the item at the given zero-based index.
func (s *Store) RemoveByIndex(idx int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= len(s.items) {
		return Item{}, fmt.Errorf("%w: staged index %d out of range 0..%d",
			contract.ErrNotFound, idx, len(s.items)-1)
	}
	item := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.notify()
	return item, nil
}

func (s *Store) RemoveByKey(key string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.Key() == key || item.ID == key {
			s.items = append(s.items[:i], s.items[i+1:]...)
			s.notify()
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: no staged item matches %q", contract.ErrNotFound, key)
}

func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	s.items = nil
	if n > 0 {
		s.notify()
	}
	return n
}

// ReplaceAll swaps the whole queue, used when an approval surface reorders
// or edits staged items wholesale.
func (s *Store) ReplaceAll(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Item(nil), items...)
	s.notify()
}

func (s *Store) snapshot() []Item {
	return append([]Item(nil), s.items...)
}

// notify runs under the lock; callbacks must not call back into the store.
func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange(s.snapshot())
	}
}
