// Package config loads ssobridge configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults (Default)
//  2. a YAML file named by SSOBRIDGE_CONFIG_FILE
//  3. environment variables, after a local .env file is loaded if present
//
// The shared secret is only read from the environment.
//
// Server settings:
//
//	SSOBRIDGE_HOST="0.0.0.0"
//	SSOBRIDGE_PORT="8080"
//	SSOBRIDGE_HEALTH_PORT="9090"
//
// Handoff settings:
//
//	SSOBRIDGE_APP_URL="https://shop.example.com"
//	SSOBRIDGE_PARTNER_URL="https://blog.example.com"
//	SSOBRIDGE_SHARED_SECRET="..."
//	SSOBRIDGE_TOKEN_TTL="5m"
//	SSOBRIDGE_PARTNER_TIMEOUT="5s"
//	SSOBRIDGE_SWEEP_SCHEDULE="*/10 * * * *"
//
// Storage settings:
//
//	SSOBRIDGE_DB_DRIVER="postgres"  # postgres, sqlite
//	SSOBRIDGE_DB_DSN="postgres://localhost/ssobridge?sslmode=disable"
//	SSOBRIDGE_TOKEN_BACKEND="sql"    # sql, redis, memory
//	SSOBRIDGE_SESSION_BACKEND="redis" # redis, memory
//	SSOBRIDGE_REDIS_URL="redis://localhost:6379/0"
//
// Observability settings:
//
//	SSOBRIDGE_LOG_LEVEL="info"
//	SSOBRIDGE_OTEL_ENABLED="true"
//	SSOBRIDGE_OTEL_ENDPOINT="otel-collector:4317"
package config
