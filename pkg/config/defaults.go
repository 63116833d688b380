package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "serein"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	// A slot lock lives for five minutes unless renewed. Holders renew at
	// 80% of the TTL so one missed renewal attempt does not lose the hold.
	DefaultLockTTL              = 5 * time.Minute
	DefaultLockRenewFraction    = 0.8
	DefaultLockRenewMaxAttempts = 5
	DefaultLockRenewRetryDelay  = 2 * time.Second

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 50
)

// NormalizePaginationLimit clamps a client-supplied page size.
func NormalizePaginationLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultPaginationLimit
	}
	return limit
}

// NormalizeOffset clamps a client-supplied offset.
func NormalizeOffset(offset int64) int64 {
	if offset < 0 {
		return 0
	}
	return offset
}
