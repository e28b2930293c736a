package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/af-corp/relay/internal/types"
)

type memoryEntry struct {
	conv      types.ConversationContext
	expiresAt time.Time
}

// MemoryStore is the in-process Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key]*memoryEntry
	opts    Options
	now     func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]*memoryEntry),
		opts:    opts.withDefaults(),
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (*types.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(key)
	if !ok {
		return &types.ConversationContext{}, nil
	}
	out := e.conv
	out.Messages = append([]types.Message(nil), e.conv.Messages...)
	return &out, nil
}

func (s *MemoryStore) Append(_ context.Context, key Key, tokens int, msgs ...types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.live(key)
	if !ok {
		e = &memoryEntry{conv: types.ConversationContext{CreatedAt: now}}
		s.entries[key] = e
	}

	e.conv.Messages = append(e.conv.Messages, msgs...)
	if over := len(e.conv.Messages) - s.opts.MaxMessages; over > 0 {
		e.conv.Messages = append([]types.Message(nil), e.conv.Messages[over:]...)
	}
	e.conv.TotalTokens += tokens
	e.conv.UpdatedAt = now
	e.expiresAt = now.Add(s.opts.TTL)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// live must be called with mu held. Expired entries are dropped on access.
func (s *MemoryStore) live(key Key) (*memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}
