package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.DSN = ":memory:"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad driver", mutate: func(c *Config) { c.Driver = "mysql" }, wantErr: "invalid storage driver"},
		{name: "missing dsn", mutate: func(c *Config) { c.DSN = "" }, wantErr: "DSN is required"},
		{name: "bad token backend", mutate: func(c *Config) { c.TokenBackend = "disk" }, wantErr: "invalid token backend"},
		{name: "bad session backend", mutate: func(c *Config) { c.SessionBackend = "sql" }, wantErr: "invalid session backend"},
		{
			name: "redis backend without url",
			mutate: func(c *Config) {
				c.TokenBackend = BackendRedis
				c.RedisURL = ""
			},
			wantErr: "redis URL is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor(DriverPostgres)
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	d, err = DialectFor(DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	db, dialect, err := Open(ctx, memoryConfig())
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DialectSQLite, dialect)

	require.NoError(t, Migrate(ctx, db, dialect))
	require.NoError(t, Migrate(ctx, db, dialect), "migrations must be idempotent")

	for _, table := range []string{"users", "sso_tokens"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		require.NoError(t, err)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_UnknownDialect(t *testing.T) {
	db, _, err := Open(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, Migrate(context.Background(), db, Dialect("mssql")))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "not a url"
	_, err := NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	mr.Close()
	_, err = NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}
