// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	DOCSTACK_HOST="0.0.0.0"
//	DOCSTACK_PORT="8080"
//	DOCSTACK_HEALTH_PORT="9090"
//	DOCSTACK_READ_TIMEOUT="15s"
//	DOCSTACK_WRITE_TIMEOUT="60s"
//
// Storage settings:
//
//	DOCSTACK_POSTGRES_URL="postgres://localhost/docstack"
//	DOCSTACK_POSTGRES_MAX_CONNS="25"
//	DOCSTACK_S3_ENDPOINT="http://localhost:9000"
//	DOCSTACK_S3_BUCKET="docstack"
//	DOCSTACK_S3_REGION="us-east-1"
//	DOCSTACK_REDIS_URL="localhost:6379"
//
// Audit settings:
//
//	DOCSTACK_AUDIT_DB_ENABLED="true"
//	DOCSTACK_AUDIT_FILE_PATH="/var/log/docstack/audit.ndjson"
//	DOCSTACK_AUDIT_BUFFER_SIZE="1024"
//
// Reconciler settings:
//
//	DOCSTACK_RECONCILER_ENABLED="true"
//	DOCSTACK_RECONCILER_SCHEDULE="0 3 * * *"
//	DOCSTACK_RECONCILER_GRACE_PERIOD="24h"
//
// Rate limit settings:
//
//	DOCSTACK_RATELIMIT_ENABLED="true"
//	DOCSTACK_RATELIMIT_DISTRIBUTED="false"
//
// Observability settings:
//
//	DOCSTACK_LOG_LEVEL="info"  # debug, info, warn, error
//	DOCSTACK_METRICS_ENABLED="true"
//	DOCSTACK_OTEL_ENABLED="false"
//	DOCSTACK_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
