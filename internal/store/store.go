// Package store persists configuration, relay users and message snapshots.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup has no matching row.
	ErrNotFound = errors.New("store: not found")
	// ErrTopicTaken is returned when a topic id already belongs to another user.
	ErrTopicTaken = errors.New("store: topic already assigned")
)

// State is the verification state of a private chat user.
type State string

const (
	StateNew                 State = "new"
	StatePendingVerification State = "pending_verification"
	StateVerified            State = "verified"
)

// UserInfo is the profile snapshot taken when the user's topic is created.
type UserInfo struct {
	Name      string `json:"name"`
	Username  string `json:"username,omitempty"`
	FirstSeen int64  `json:"first_seen"`
}

// User is a private chat user tracked by the relay.
type User struct {
	ID         string
	State      State
	IsBlocked  bool
	BlockCount int
	// TopicID is empty when the user has no thread in the admin group.
	TopicID string
	Info    *UserInfo
}

// UserPatch lists the fields to change; nil fields are left untouched.
// An empty TopicID clears the stored topic.
type UserPatch struct {
	State      *State
	IsBlocked  *bool
	BlockCount *int
	TopicID    *string
	Info       *UserInfo
}

// Snapshot is the last known content of a relayed message.
type Snapshot struct {
	UserID    string
	MessageID string
	Text      string
	Date      int64
}

// Store is the persistence surface used by the relay services.
type Store interface {
	// EnsureSchema creates missing tables. It is safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	GetConfig(ctx context.Context, key string) (string, bool, error)
	PutConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error

	GetOrCreateUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
	// IncrementBlockCount atomically adds one to block_count and returns the new value.
	IncrementBlockCount(ctx context.Context, id string) (int, error)
	UserByTopic(ctx context.Context, topicID string) (*User, error)

	PutSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, userID, messageID string) (*Snapshot, error)

	Close() error
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }

func newUser(id string) *User {
	return &User{ID: id, State: StateNew}
}
