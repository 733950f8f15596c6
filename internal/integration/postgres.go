package integration

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/LuisNSantana/hums-authd/internal/db"
)

// PostgresStore persists connections in the integration_connections
// table, one row per (user_id, service).
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SelectByIdentityAndService(ctx context.Context, userID, service string) (*Connection, error) {
	var (
		c         Connection
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, service, access_token, refresh_token, expires_at,
		       scopes, account_email, connected, updated_at
		FROM integration_connections
		WHERE user_id = $1 AND service = $2
	`, userID, service).Scan(
		&c.UserID, &c.Service, &c.AccessToken, &c.RefreshToken, &expiresAt,
		pq.Array(&c.Scopes), &c.AccountEmail, &c.Connected, &c.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		c.ExpiresAt = expiresAt.Time
	}
	return &c, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, c Connection) error {
	var expiresAt any
	if !c.ExpiresAt.IsZero() {
		expiresAt = c.ExpiresAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO integration_connections
			(user_id, service, access_token, refresh_token, expires_at,
			 scopes, account_email, connected, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id, service) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			scopes        = EXCLUDED.scopes,
			account_email = EXCLUDED.account_email,
			connected     = EXCLUDED.connected,
			updated_at    = NOW()
	`, c.UserID, c.Service, c.AccessToken, c.RefreshToken, expiresAt,
		pq.Array(c.Scopes), c.AccountEmail, c.Connected)
	return err
}
