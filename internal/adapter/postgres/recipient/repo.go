// Package recipient implements the registry of recipient chats using PostgreSQL.
package recipient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// Repo provides recipient chat persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new recipient repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Register binds chatID to username. A username previously held by another
// chat is released first, so the newest registration wins. Both statements
// go out as one batch, which PostgreSQL runs in an implicit transaction.
func (r *Repo) Register(ctx context.Context, chatID int64, username *string) error {
	batch := &pgx.Batch{}
	if username != nil {
		batch.Queue(`UPDATE registered_chats SET username = NULL
			WHERE lower(username) = lower($1) AND chat_id <> $2`, *username, chatID)
	}
	batch.Queue(`INSERT INTO registered_chats (chat_id, username) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username`, chatID, username)

	results := postgres.QuerierFromCtx(ctx, r.pool).SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return postgres.MapError(err, "registered_chat", chatID)
		}
	}
	if err := results.Close(); err != nil {
		return postgres.MapError(err, "registered_chat", chatID)
	}
	return nil
}

// FindByHandle returns the chat registered for a normalized handle.
func (r *Repo) FindByHandle(ctx context.Context, handle string) (domain.RegisteredChat, error) {
	query, args, err := postgres.Builder().
		Select("chat_id", "username", "created_at").
		From("registered_chats").
		Where("lower(username) = lower(?)", handle).
		ToSql()
	if err != nil {
		return domain.RegisteredChat{}, fmt.Errorf("build select registered_chat: %w", err)
	}

	var c domain.RegisteredChat
	err = postgres.QuerierFromCtx(ctx, r.pool).QueryRow(ctx, query, args...).
		Scan(&c.ChatID, &c.Username, &c.CreatedAt)
	if err != nil {
		return domain.RegisteredChat{}, postgres.MapError(err, "registered_chat", handle)
	}
	return c, nil
}
