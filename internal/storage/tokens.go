package storage

import (
	"context"
	"fmt"
)

// SaveChatToken stores the API token of a chat, replacing any previous one.
func (s *SQLite) SaveChatToken(ctx context.Context, chatID int64, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_tokens (chat_id, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		chatID, token, now(),
	)
	if err != nil {
		return fmt.Errorf("save chat token: %w", err)
	}
	return nil
}

// ChatToken returns the stored API token of a chat.
func (s *SQLite) ChatToken(ctx context.Context, chatID int64) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM chat_tokens WHERE chat_id = ?`, chatID).Scan(&token)
	if err != nil {
		return "", notFound(err, "chat token")
	}
	return token, nil
}

// DeleteChatToken forgets the API token of a chat.
func (s *SQLite) DeleteChatToken(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_tokens WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete chat token: %w", err)
	}
	return nil
}
