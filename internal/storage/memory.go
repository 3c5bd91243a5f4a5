package storage

import (
	"context"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local KV backed by go-cache. It is the default
// backend when no durable driver is configured, and the one tests use.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates an empty store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return v.(string), nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.items.Set(key, value, gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.items.Delete(key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.items.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
