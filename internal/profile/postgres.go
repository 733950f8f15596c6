package profile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/LuisNSantana/hums-authd/internal/db"
)

const uniqueViolation = "23505"

// PostgresStore persists profiles in the profiles table.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SelectByID(ctx context.Context, id string) (*Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, avatar_url, deactivated, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id).Scan(&r.ID, &r.Email, &r.DisplayName, &r.AvatarURL, &r.Deactivated, &r.CreatedAt, &r.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) Insert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
	`, r.ID, r.Email, r.DisplayName, r.AvatarURL)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) Update(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET email = $2,
		    display_name = $3,
		    avatar_url = $4,
		    deactivated = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, r.ID, r.Email, r.DisplayName, r.AvatarURL, r.Deactivated)
	return err
}

func (s *PostgresStore) SelectAll(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, display_name, avatar_url, deactivated, created_at, updated_at
		FROM profiles
		WHERE ($1::boolean IS NULL OR deactivated = $1)
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, f.Deactivated, limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Email, &r.DisplayName, &r.AvatarURL, &r.Deactivated, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
