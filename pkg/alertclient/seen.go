// Package alertclient is the consumer side of the realtime alert endpoint.
// The queue behind that endpoint is a rolling view, so the same alert is
// returned by consecutive polls; SeenSet filters those repeats.
package alertclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"FinAlert/internal/domain/models"
)

// DefaultSeenCapacity matches the delivery queue cap.
const DefaultSeenCapacity = 100

// SeenSet remembers the most recent alert keys with FIFO eviction. When path
// is set the keys survive restarts.
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	path     string
	order    []string
	keys     map[string]struct{}
}

type seenFile struct {
	Keys []string `json:"keys"`
}

// SeenKey is the consumer identity of an alert: (stock_code, alert_time, alert_type).
func SeenKey(v models.AlertView) string {
	return v.StockCode + "|" + v.AlertTime + "|" + v.AlertType
}

// NewSeenSet loads path if it exists. An empty path keeps the set in memory.
func NewSeenSet(path string, capacity int) (*SeenSet, error) {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	s := &SeenSet{
		capacity: capacity,
		path:     path,
		keys:     make(map[string]struct{}, capacity),
	}
	if path == "" {
		return s, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seen set: %w", err)
	}
	var f seenFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode seen set %s: %w", path, err)
	}
	for _, k := range f.Keys {
		s.add(k)
	}
	return s, nil
}

// Add records key and reports whether it was new.
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(key)
}

func (s *SeenSet) add(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	s.order = append(s.order, key)
	for len(s.order) > s.capacity {
		delete(s.keys, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

func (s *SeenSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Save writes the keys oldest first, replacing the file atomically.
func (s *SeenSet) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	b, err := json.Marshal(seenFile{Keys: append([]string(nil), s.order...)})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode seen set: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".seen-*")
	if err != nil {
		return fmt.Errorf("save seen set: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("save seen set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("save seen set: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("save seen set: %w", err)
	}
	return nil
}
