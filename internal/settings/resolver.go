package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/m3rciful/topicrelay/core/logger"
)

// KV is the slice of the store the resolver reads and writes.
type KV interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	PutConfig(ctx context.Context, key, value string) error
}

// Lookup is one tier of the resolution chain. ok reports whether the tier
// holds a value for key.
type Lookup func(ctx context.Context, key string) (value string, ok bool)

// Resolver answers configuration reads by walking its lookups in order.
type Resolver struct {
	kv    KV
	chain []Lookup
}

// New builds the store -> environment chain over kv.
func New(kv KV) *Resolver {
	return &Resolver{kv: kv, chain: []Lookup{StoreLookup(kv), EnvLookup(os.LookupEnv)}}
}

// NewWithChain returns a resolver with a custom chain; writes still go to kv.
func NewWithChain(kv KV, chain ...Lookup) *Resolver {
	return &Resolver{kv: kv, chain: chain}
}

// StoreLookup reads key from the config table. Store errors are logged and
// treated as a miss so that env and defaults still apply.
func StoreLookup(kv KV) Lookup {
	return func(ctx context.Context, key string) (string, bool) {
		if kv == nil {
			return "", false
		}
		v, ok, err := kv.GetConfig(ctx, key)
		if err != nil {
			logger.Warn(ctx, logger.ComponentSettings, "config.read",
				slog.String("key", key),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return "", false
		}
		return v, ok
	}
}

// EnvLookup reads the variable named by the rename table. Empty variables
// count as unset.
func EnvLookup(getenv func(string) (string, bool)) Lookup {
	return func(_ context.Context, key string) (string, bool) {
		name, ok := envNames[key]
		if !ok {
			return "", false
		}
		v, ok := getenv(name)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}
}

// Get returns the first value found along the chain, or def.
func (r *Resolver) Get(ctx context.Context, key, def string) string {
	for _, lookup := range r.chain {
		if v, ok := lookup(ctx, key); ok {
			return v
		}
	}
	return def
}

// Value resolves key with its built-in default.
func (r *Resolver) Value(ctx context.Context, key string) string {
	return r.Get(ctx, key, Default(key))
}

// Bool reports whether key resolves to "true", ignoring case.
func (r *Resolver) Bool(ctx context.Context, key string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Value(ctx, key)), "true")
}

// Int parses key as an integer, returning def for missing or malformed values.
func (r *Resolver) Int(ctx context.Context, key string, def int) int {
	raw := strings.TrimSpace(r.Get(ctx, key, ""))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn(ctx, logger.ComponentSettings, "config.parse",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return def
	}
	return n
}

// BlockThreshold returns the configured threshold, never below one.
func (r *Resolver) BlockThreshold(ctx context.Context) int {
	n := r.Int(ctx, KeyBlockThreshold, DefaultBlockThreshold)
	if n < 1 {
		return DefaultBlockThreshold
	}
	return n
}

// BackupGroupID returns the backup chat id; ok is false when unset or invalid.
func (r *Resolver) BackupGroupID(ctx context.Context) (int64, bool) {
	raw := strings.TrimSpace(r.Value(ctx, KeyBackupGroupID))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn(ctx, logger.ComponentSettings, "config.parse",
			slog.String("key", KeyBackupGroupID),
			slog.String("err", err.Error()),
		)
		return 0, false
	}
	return id, true
}

// Set writes value to the store.
func (r *Resolver) Set(ctx context.Context, key, value string) error {
	if err := r.kv.PutConfig(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Toggle flips a boolean flag and returns the new value.
func (r *Resolver) Toggle(ctx context.Context, key string) (bool, error) {
	next := !r.Bool(ctx, key)
	if err := r.Set(ctx, key, strconv.FormatBool(next)); err != nil {
		return false, err
	}
	return next, nil
}
