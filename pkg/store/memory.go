package store

import (
	"context"
	"sync"
	"time"
)

// Memory implements both Cache and Durable in process memory.
// It is the default backend for development and tests; expiry is lazy,
// checked on read.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]memoryItem
	logs   map[string][][]byte
	now    func() time.Time
	closed bool
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]memoryItem),
		logs:  make(map[string][][]byte),
		now:   time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, false, ErrClosed
	}
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		// Expired entries are removed on the next write path; treat as miss.
		return nil, false, nil
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item
	m.sweepLocked()
	return nil
}

// SetDurable stores value under key without expiry (Durable interface).
func (m *Memory) SetDurable(ctx context.Context, key string, value []byte) error {
	return m.Set(ctx, key, value, 0)
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.items, key)
	return nil
}

// Append adds entry to the log under key.
func (m *Memory) Append(ctx context.Context, key string, entry []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.logs[key] = append(m.logs[key], append([]byte(nil), entry...))
	return nil
}

// List returns log entries for key in append order.
func (m *Memory) List(ctx context.Context, key string, limit int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	entries := m.logs[key]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = append([]byte(nil), e...)
	}
	return out, nil
}

// Close marks the store closed. Subsequent operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// sweepLocked drops expired entries. Must be called with the write lock held.
func (m *Memory) sweepLocked() {
	now := m.now()
	for k, item := range m.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(m.items, k)
		}
	}
}

// memoryDurable adapts Memory's no-expiry Set to the Durable interface.
type memoryDurable struct {
	*Memory
}

// AsDurable returns a Durable view of the memory store.
func (m *Memory) AsDurable() Durable {
	return memoryDurable{m}
}

// Set stores value under key without expiry.
func (d memoryDurable) Set(ctx context.Context, key string, value []byte) error {
	return d.Memory.SetDurable(ctx, key, value)
}

// Verify interface compliance at compile time.
var (
	_ Cache   = (*Memory)(nil)
	_ Durable = memoryDurable{}
)
