package questionbank

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// OpenPostgresStore connects to Postgres through pgx and creates the tables
func OpenPostgresStore(ctx context.Context, dsn string) (*DB, error) {
	const op = "questionbank.OpenPostgresStore"

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse database config: %w", op, err)
	}

	db := stdlib.OpenDB(*connConfig)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	store := &DB{db: db, dialect: postgresDialect}
	if err := store.CreateTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Println("Postgres connected successfully")
	return store, nil
}

// PostgresDSN builds a connection URL from its parts
func PostgresDSN(user, password, host, port, name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, name)
}
