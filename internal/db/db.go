package db

import "database/sql"

// DB wraps the shared sql.DB handle so stores depend on one package
// instead of passing raw handles around.
type DB struct {
	*sql.DB
}
