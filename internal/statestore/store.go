// Package statestore remembers per-project operator choices (the runtime app
// address and the last input per script) between invocations.
package statestore

import (
	"context"
	"sync"
)

const (
	// TargetKey holds the normalized runtime app address.
	TargetKey       = "target"
	paramsKeyPrefix = "params:"
)

// ParamsKey is the key holding the last input used for script.
func ParamsKey(script string) string {
	return paramsKeyPrefix + script
}

// Store is a per-project key-value store.
type Store interface {
	Get(ctx context.Context, project, key string) (string, bool, error)
	Set(ctx context.Context, project, key, value string) error
	Delete(ctx context.Context, project, key string) error
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]map[string]string)}
}

func (m *Memory) Get(_ context.Context, project, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[project][key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, project, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[project] == nil {
		m.values[project] = make(map[string]string)
	}
	m.values[project][key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, project, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[project], key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
