package session

import (
	"context"
	"sync"
)

// MemoryTokens is a TokenStore kept in process memory.
type MemoryTokens struct {
	mu    sync.Mutex
	token string
}

var _ TokenStore = (*MemoryTokens)(nil)

func (m *MemoryTokens) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNoToken
	}
	return m.token, nil
}

func (m *MemoryTokens) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryTokens) DeleteToken(context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
