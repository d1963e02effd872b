// Package storage opens the databases ssobridge persists to.
//
// Users always live in SQL: PostgreSQL (lib/pq) in production, SQLite
// (mattn/go-sqlite3) for local development and tests. One-time tokens live in
// SQL by default and may be moved to redis; sessions live in redis or in an
// in-process LRU. Backends are picked through Config.
//
//	cfg := storage.DefaultConfig()
//	cfg.Driver = storage.DriverPostgres
//	cfg.DSN = "postgres://localhost/ssobridge?sslmode=disable"
//
//	db, dialect, err := storage.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := storage.Migrate(ctx, db, dialect); err != nil {
//		return err
//	}
//
// All timestamps are written in UTC by the callers; the schema never relies
// on database-side clocks.
package storage
