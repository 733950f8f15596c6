package db

import (
	"context"
	"database/sql"
)

const lifecycleMigration = `
CREATE TABLE IF NOT EXISTS profiles (
    id uuid PRIMARY KEY,
    email text NOT NULL,
    display_name text NOT NULL DEFAULT '',
    avatar_url text NOT NULL DEFAULT '',
    deactivated boolean NOT NULL DEFAULT false,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS integration_connections (
    user_id uuid NOT NULL,
    service text NOT NULL,
    access_token text NOT NULL DEFAULT '',
    refresh_token text NOT NULL DEFAULT '',
    expires_at timestamptz,
    scopes text[] NOT NULL DEFAULT '{}',
    account_email text NOT NULL DEFAULT '',
    connected boolean NOT NULL DEFAULT false,
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT integration_connections_key
        UNIQUE (user_id, service)
);

CREATE INDEX IF NOT EXISTS integration_connections_user_idx
ON integration_connections (user_id);
`

// RunLifecycleMigration creates the profile and integration tables. The
// statements are idempotent and run at every startup.
func RunLifecycleMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, lifecycleMigration)
	return err
}
