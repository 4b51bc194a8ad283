// Package config loads ThoughtNest configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file (-config flag or THOUGHTNEST_CONFIG_FILE)
//  3. an optional .env file (-env-file flag, THOUGHTNEST_ENV_FILE, or ./.env)
//  4. THOUGHTNEST_* environment variables
//
// Common variables:
//
//	THOUGHTNEST_PORT="8080"
//	THOUGHTNEST_HEALTH_PORT="9090"
//	THOUGHTNEST_JWT_SECRET="<at least 32 bytes>"
//	THOUGHTNEST_POSTGRES_URL="postgres://localhost/thoughtnest?sslmode=disable"
//	THOUGHTNEST_REDIS_URL="redis://localhost:6379/0"
//	THOUGHTNEST_OBJECT_STORE="s3"   # none, s3, minio
//	THOUGHTNEST_S3_BUCKET="thoughtnest-images"
//	THOUGHTNEST_SMTP_HOST="smtp.example.com"
//	THOUGHTNEST_ADMIN_EMAIL="admin@example.com"
//	THOUGHTNEST_RESET_URL="https://thoughtnest.example.com/reset-password"
//	THOUGHTNEST_LOG_LEVEL="info"
//
// The same settings in YAML use snake_case section keys:
//
//	server:
//	  port: "8080"
//	auth:
//	  session_ttl: 24h
//	storage:
//	  object_store:
//	    backend: minio
//	    endpoint: localhost:9000
//	    bucket: images
//
// LoadConfig validates the merged result and reports every problem at once.
package config
