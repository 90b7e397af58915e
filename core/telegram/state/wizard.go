package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a stored wizard cannot be decoded.
var ErrMalformed = errors.New("state: malformed wizard")

// KeyPrefix namespaces wizard entries in the config table.
const KeyPrefix = "admin_state:"

// Wizard is a pending multi-step input. The zero value is idle.
type Wizard struct {
	Action string `json:"action"`
	Key    string `json:"key"`
}

// Idle reports whether no input is pending.
func (w Wizard) Idle() bool {
	return w.Action == ""
}

// KV is the storage used by Manager.
type KV interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	PutConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

// Manager loads and saves wizards keyed by actor id.
type Manager struct {
	kv KV
}

// NewManager returns a Manager over kv.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

// Key returns the config key holding the wizard of actorID.
func Key(actorID int64) string {
	return KeyPrefix + strconv.FormatInt(actorID, 10)
}

// Get returns the wizard for actorID. A missing entry is an idle wizard;
// an undecodable one yields ErrMalformed.
func (m *Manager) Get(ctx context.Context, actorID int64) (Wizard, error) {
	raw, ok, err := m.kv.GetConfig(ctx, Key(actorID))
	if err != nil {
		return Wizard{}, fmt.Errorf("load wizard: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Wizard{}, nil
	}
	var w Wizard
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Wizard{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Action == "" {
		return Wizard{}, fmt.Errorf("%w: empty action", ErrMalformed)
	}
	return w, nil
}

// Begin stores w as the pending wizard for actorID.
func (m *Manager) Begin(ctx context.Context, actorID int64, w Wizard) error {
	if w.Idle() {
		return m.Clear(ctx, actorID)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode wizard: %w", err)
	}
	if err := m.kv.PutConfig(ctx, Key(actorID), string(raw)); err != nil {
		return fmt.Errorf("save wizard: %w", err)
	}
	return nil
}

// Clear removes any pending wizard for actorID.
func (m *Manager) Clear(ctx context.Context, actorID int64) error {
	if err := m.kv.DeleteConfig(ctx, Key(actorID)); err != nil {
		return fmt.Errorf("clear wizard: %w", err)
	}
	return nil
}
