// Package conversation keeps the ordered, append-only log of chat turns.
package conversation

import (
	"sync"
	"time"

	"webbuilder/internal/models"
)

// Store holds role-tagged messages in insertion order. It only grows through
// Append and is only emptied as a whole through Clear.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append records a new message stamped with the current time and returns it.
// Content is not validated; empty strings are kept as-is.
func (s *Store) Append(role models.Role, content string) models.Message {
	msg := models.Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg
}

// RecentWindow returns a copy of the last n messages in original order.
// Fewer are returned when the store holds less than n; n <= 0 yields none.
func (s *Store) RecentWindow(n int) []models.Message {
	if n <= 0 {
		return []models.Message{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	window := make([]models.Message, len(s.messages)-start)
	copy(window, s.messages[start:])
	return window
}

// Messages returns a copy of the whole log.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports how many messages have been appended since the last Clear.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Clear drops every message.
func (s *Store) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// Restore replaces the log with previously journaled messages, keeping their
// original timestamps. Used when rebuilding state after a restart.
func (s *Store) Restore(history []models.Message) {
	cloned := make([]models.Message, len(history))
	copy(cloned, history)
	s.mu.Lock()
	s.messages = cloned
	s.mu.Unlock()
}
