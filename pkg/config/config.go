package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"serein/pkg/client"
	"serein/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	// Slot lock lease settings. RenewFraction must stay strictly below 1
	// or a holder renews only after its own lease has lapsed.
	LockTTL              time.Duration
	LockRenewFraction    float64
	LockRenewMaxAttempts int
	LockRenewRetryDelay  time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		LockTTL:              getEnvDuration(EnvLockTTL, DefaultLockTTL),
		LockRenewFraction:    getEnvFloat(EnvLockRenewFraction, DefaultLockRenewFraction),
		LockRenewMaxAttempts: getEnvNum(EnvLockRenewMaxAttempts, DefaultLockRenewMaxAttempts),
		LockRenewRetryDelay:  getEnvDuration(EnvLockRenewRetryDelay, DefaultLockRenewRetryDelay),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}
	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	}
	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}
	if cfg.LockTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("LockTTL must be at least 1m, got: %s", cfg.LockTTL))
	}
	if cfg.LockRenewFraction <= 0 || cfg.LockRenewFraction >= 1 {
		errs = append(errs, fmt.Sprintf("LockRenewFraction must be in (0, 1), got: %v", cfg.LockRenewFraction))
	}
	if cfg.LockRenewMaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("LockRenewMaxAttempts must be at least 1, got: %d", cfg.LockRenewMaxAttempts))
	}

	if len(errs) > 0 {
		msg := "Configuration validation failed:"
		for i, e := range errs {
			msg += fmt.Sprintf("\n  %d. %s", i+1, e)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded",
		"mongo_database", cfg.MongoDatabaseName,
		"port", cfg.Port,
		"lock_ttl", cfg.LockTTL,
		"lock_renew_fraction", cfg.LockRenewFraction,
		"lock_renew_max_attempts", cfg.LockRenewMaxAttempts,
		"lock_renew_retry_delay", cfg.LockRenewRetryDelay,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

// GracefulShutdown disconnects the shared clients. Jobs call it on exit;
// the HTTP application handles its own server drain first.
func (cfg *Config) GracefulShutdown() {
	if cfg.Client == nil || cfg.Client.Mongo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := cfg.Client.Mongo.Disconnect(ctx); err != nil {
		cfg.Log.Error("Failed to disconnect MongoDB", "error", err)
	}
}

// RenewInterval is the cadence at which a held lock should be renewed.
func (cfg *Config) RenewInterval() time.Duration {
	return time.Duration(float64(cfg.LockTTL) * cfg.LockRenewFraction)
}

func getEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvNum(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
