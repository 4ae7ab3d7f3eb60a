package drafts

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by a KV when the key has no value.
var ErrNotFound = errors.New("drafts: key not found")

// KV is a string key-value store. Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// MemoryKV keeps values in process memory.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Len reports how many keys are stored.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

type scopedKV struct {
	kv     KV
	prefix string
}

// Scoped namespaces every key under scope, so each client gets its own copy of the fixed draft key.
func Scoped(kv KV, scope string) KV {
	return &scopedKV{kv: kv, prefix: scope + ":"}
}

func (s *scopedKV) Get(ctx context.Context, key string) (string, error) {
	return s.kv.Get(ctx, s.prefix+key)
}

func (s *scopedKV) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, s.prefix+key, value)
}

func (s *scopedKV) Remove(ctx context.Context, key string) error {
	return s.kv.Remove(ctx, s.prefix+key)
}
