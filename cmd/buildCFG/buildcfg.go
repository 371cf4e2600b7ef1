package buildCFG

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"leadcapture/internal/notify"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type ServerConfig struct {
	Port          string
	PublicBaseURL string
	AdminSecret   string
	Storage       string
	Location      *time.Location
}

type RabbitConfig struct {
	Enabled           bool
	Url               string
	Exchange          string
	NotificationQueue string
	FailureQueue      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type NotifyConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	Dispatcher notify.Config
}

type MigrationConfig struct {
	Dir                string
	RollbackOnShutdown bool
}

func stringOr(cfg *config.Config, key, def string) string {
	if v := cfg.GetString(key); v != "" {
		return v
	}
	return def
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:          stringOr(cfg, "server.port", "8080"),
		PublicBaseURL: stringOr(cfg, "server.public_base_url", "http://localhost:8080"),
		AdminSecret:   stringOr(cfg, "auth.admin_jwt_secret", os.Getenv("ADMIN_JWT_SECRET")),
		Storage:       stringOr(cfg, "storage.driver", StoragePostgres),
		Location:      time.UTC,
	}

	if tz := cfg.GetString("export.timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn().Err(err).Str("timezone", tz).Msg("unknown export timezone, using UTC")
		} else {
			sc.Location = loc
		}
	}
	return sc
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := stringOr(cfg, "postgres.master_dsn", os.Getenv("POSTGRES_MASTER_DSN"))
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("postgres.master_dsn is not set")
	}
	slaveDSNs := cfg.GetStringSlice("postgres.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}

	log.Info().Int("slaves", len(slaveDSNs)).Int("max_open_conns", opts.MaxOpenConns).Msg("postgres config built")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildMigrationConfig(cfg *config.Config) MigrationConfig {
	return MigrationConfig{
		Dir:                stringOr(cfg, "postgres.migrations_dir", "migrations/postgres"),
		RollbackOnShutdown: cfg.GetBool("postgres.rollback_on_shutdown"),
	}
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:           cfg.GetBool("rabbitmq.enabled"),
		Url:               stringOr(cfg, "rabbitmq.url", os.Getenv("RABBITMQ_URL")),
		Exchange:          stringOr(cfg, "rabbitmq.exchange", "leadcapture"),
		NotificationQueue: stringOr(cfg, "rabbitmq.notification_queue", "registration.accepted"),
		FailureQueue:      stringOr(cfg, "rabbitmq.failure_queue", "notification.failed"),
	}
	if rc.Enabled && rc.Url == "" {
		return rc, fmt.Errorf("rabbitmq.url is required when rabbitmq is enabled")
	}
	log.Info().Bool("enabled", rc.Enabled).Str("exchange", rc.Exchange).Msg("rabbitmq config built")
	return rc, nil
}

func BuildRedisConfig(cfg *config.Config) RedisConfig {
	return RedisConfig{
		Addr:     stringOr(cfg, "redis.addr", os.Getenv("REDIS_ADDR")),
		Password: stringOr(cfg, "redis.password", os.Getenv("REDIS_PASSWORD")),
		DB:       cfg.GetInt("redis.db"),
		TTL:      cfg.GetDuration("redis.ttl"),
		Prefix:   cfg.GetString("redis.prefix"),
	}
}

// BuildNotifyConfig reads the messaging API settings. The bearer token is
// only ever taken from configuration or NOTIFY_API_TOKEN.
func BuildNotifyConfig(cfg *config.Config, log *zerolog.Logger) NotifyConfig {
	nc := NotifyConfig{
		URL:     cfg.GetString("notify.url"),
		Token:   stringOr(cfg, "notify.token", os.Getenv("NOTIFY_API_TOKEN")),
		Timeout: cfg.GetDuration("notify.timeout"),
		Dispatcher: notify.Config{
			CountryCode:   cfg.GetString("notify.country_code"),
			Attempts:      cfg.GetInt("notify.attempts"),
			Delay:         cfg.GetDuration("notify.delay"),
			Backoff:       cfg.GetFloat64("notify.backoff"),
			FailureBuffer: cfg.GetInt("notify.failure_buffer"),
		},
	}
	if nc.Token == "" {
		log.Warn().Msg("notify token is empty, messaging API calls will be unauthenticated")
	}
	return nc
}
