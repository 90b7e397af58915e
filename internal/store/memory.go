package store

import (
	"context"
	"fmt"
	"sync"
)

type snapshotKey struct {
	userID    string
	messageID string
}

// Memory is a process-local Store. Data is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	config    map[string]string
	users     map[string]*User
	snapshots map[snapshotKey]Snapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		config:    make(map[string]string),
		users:     make(map[string]*User),
		snapshots: make(map[snapshotKey]Snapshot),
	}
}

// EnsureSchema is a no-op for the memory store.
func (m *Memory) EnsureSchema(context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Memory) Close() error { return nil }

func (m *Memory) GetConfig(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config[key]
	return v, ok, nil
}

func (m *Memory) PutConfig(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

func (m *Memory) DeleteConfig(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.config, key)
	return nil
}

func (m *Memory) GetOrCreateUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = newUser(id)
		m.users[id] = u
	}
	return cloneUser(u), nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, patch UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.TopicID != nil && *patch.TopicID != "" {
		for other, u := range m.users {
			if other != id && u.TopicID == *patch.TopicID {
				return fmt.Errorf("update user %s: %w", id, ErrTopicTaken)
			}
		}
	}
	u, ok := m.users[id]
	if !ok {
		u = newUser(id)
		m.users[id] = u
	}
	if patch.State != nil {
		u.State = *patch.State
	}
	if patch.IsBlocked != nil {
		u.IsBlocked = *patch.IsBlocked
	}
	if patch.BlockCount != nil {
		u.BlockCount = *patch.BlockCount
	}
	if patch.TopicID != nil {
		u.TopicID = *patch.TopicID
	}
	if patch.Info != nil {
		info := *patch.Info
		u.Info = &info
	}
	return nil
}

func (m *Memory) IncrementBlockCount(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = newUser(id)
		m.users[id] = u
	}
	u.BlockCount++
	return u.BlockCount, nil
}

func (m *Memory) UserByTopic(_ context.Context, topicID string) (*User, error) {
	if topicID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.TopicID == topicID {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) PutSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshotKey{snap.UserID, snap.MessageID}] = snap
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, userID, messageID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[snapshotKey{userID, messageID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func cloneUser(u *User) *User {
	c := *u
	if u.Info != nil {
		info := *u.Info
		c.Info = &info
	}
	return &c
}
