package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/topicrelay/core/logger"
)

// Postgres implements Store on top of sqlx.
type Postgres struct {
	db      *sqlx.DB
	migrate func() error

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewPostgres wraps db. migrate is invoked by EnsureSchema until it succeeds once.
func NewPostgres(db *sqlx.DB, migrate func() error) *Postgres {
	return &Postgres{db: db, migrate: migrate}
}

type userRow struct {
	UserID     string         `db:"user_id"`
	State      string         `db:"user_state"`
	IsBlocked  int            `db:"is_blocked"`
	BlockCount int            `db:"block_count"`
	TopicID    sql.NullString `db:"topic_id"`
	InfoJSON   sql.NullString `db:"user_info_json"`
}

type snapshotRow struct {
	UserID    string `db:"user_id"`
	MessageID string `db:"message_id"`
	Text      string `db:"text"`
	Date      int64  `db:"date"`
}

const userColumns = `user_id, user_state, is_blocked, block_count, topic_id, user_info_json`

// EnsureSchema runs migrations once per process; failures are not cached.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()
	if p.schemaReady {
		return nil
	}
	if p.migrate != nil {
		if err := p.migrate(); err != nil {
			logger.Error(ctx, logger.ComponentStore, "schema.ensure",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	p.schemaReady = true
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM config WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return value, true, nil
}

func (p *Postgres) PutConfig(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("put config %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) DeleteConfig(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM config WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete config %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) GetOrCreateUser(ctx context.Context, id string) (*User, error) {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("create user %s: %w", id, err)
	}
	var row userRow
	if err := p.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return row.toUser(ctx), nil
}

// UpdateUser upserts only the fields present in patch.
func (p *Postgres) UpdateUser(ctx context.Context, id string, patch UserPatch) error {
	cols := []string{"user_id"}
	args := []any{id}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if patch.State != nil {
		add("user_state", string(*patch.State))
	}
	if patch.IsBlocked != nil {
		add("is_blocked", boolToInt(*patch.IsBlocked))
	}
	if patch.BlockCount != nil {
		add("block_count", *patch.BlockCount)
	}
	if patch.TopicID != nil {
		add("topic_id", nullString(*patch.TopicID))
	}
	if patch.Info != nil {
		raw, err := json.Marshal(patch.Info)
		if err != nil {
			return fmt.Errorf("encode user info: %w", err)
		}
		add("user_info_json", string(raw))
	}

	query := buildUpsert("users", "user_id", cols)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "users_topic_id_key" {
			return fmt.Errorf("update user %s: %w", id, ErrTopicTaken)
		}
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) IncrementBlockCount(ctx context.Context, id string) (int, error) {
	var count int
	err := p.db.GetContext(ctx, &count,
		`INSERT INTO users (user_id, block_count) VALUES ($1, 1)
		 ON CONFLICT (user_id) DO UPDATE SET block_count = users.block_count + 1
		 RETURNING block_count`, id)
	if err != nil {
		return 0, fmt.Errorf("increment block count %s: %w", id, err)
	}
	return count, nil
}

func (p *Postgres) UserByTopic(ctx context.Context, topicID string) (*User, error) {
	if topicID == "" {
		return nil, ErrNotFound
	}
	var row userRow
	err := p.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE topic_id = $1 LIMIT 1`, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by topic %s: %w", topicID, err)
	}
	return row.toUser(ctx), nil
}

func (p *Postgres) PutSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO messages (user_id, message_id, text, date) VALUES (:user_id, :message_id, :text, :date)
		 ON CONFLICT (user_id, message_id) DO UPDATE SET text = EXCLUDED.text, date = EXCLUDED.date`,
		snapshotRow{UserID: snap.UserID, MessageID: snap.MessageID, Text: snap.Text, Date: snap.Date})
	if err != nil {
		return fmt.Errorf("put snapshot %s/%s: %w", snap.UserID, snap.MessageID, err)
	}
	return nil
}

func (p *Postgres) GetSnapshot(ctx context.Context, userID, messageID string) (*Snapshot, error) {
	var row snapshotRow
	err := p.db.GetContext(ctx, &row,
		`SELECT user_id, message_id, text, date FROM messages WHERE user_id = $1 AND message_id = $2`,
		userID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s/%s: %w", userID, messageID, err)
	}
	return &Snapshot{UserID: row.UserID, MessageID: row.MessageID, Text: row.Text, Date: row.Date}, nil
}

func (r userRow) toUser(ctx context.Context) *User {
	u := &User{
		ID:         r.UserID,
		State:      State(r.State),
		IsBlocked:  r.IsBlocked != 0,
		BlockCount: r.BlockCount,
	}
	if u.State == "" {
		u.State = StateNew
	}
	if r.TopicID.Valid {
		u.TopicID = r.TopicID.String
	}
	if r.InfoJSON.Valid && strings.TrimSpace(r.InfoJSON.String) != "" {
		var info UserInfo
		if err := json.Unmarshal([]byte(r.InfoJSON.String), &info); err != nil {
			logger.Warn(ctx, logger.ComponentStore, "user.info.decode",
				slog.String("user_id", r.UserID),
				slog.String("err", err.Error()),
			)
		} else {
			u.Info = &info
		}
	}
	return u
}

func buildUpsert(table, key string, cols []string) string {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), key)
	if len(cols) == 1 {
		return q + "DO NOTHING"
	}
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols {
		if c == key {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	return q + "DO UPDATE SET " + strings.Join(sets, ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
