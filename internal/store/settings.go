package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSettings stores the clock settings document for a session,
// replacing any previous one. The session must exist.
func (s *Store) SaveSettings(ctx context.Context, sessionID string, document []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clock_settings (session_id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, sessionID, string(document), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save settings for %s: %w", sessionID, err)
	}
	return nil
}

// LoadSettings returns the stored clock settings document for a session,
// or ErrNotFound.
func (s *Store) LoadSettings(ctx context.Context, sessionID string) ([]byte, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM clock_settings WHERE session_id = ?
	`, sessionID).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settings for %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", sessionID, err)
	}
	return []byte(document), nil
}
