package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Security   SecuritySettings   `mapstructure:"security"`
	Encryption EncryptionSettings `mapstructure:"encryption"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name               string   `mapstructure:"name"`
	Env                string   `mapstructure:"env"`
	Host               string   `mapstructure:"host"`
	Port               int      `mapstructure:"port"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the attempt-counter store.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	AttemptPrefix string `mapstructure:"attempt_prefix"`
}

// KafkaSettings configures the security event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Enabled     bool     `mapstructure:"enabled"`
}

// SecuritySettings groups the credential lifecycle policies.
type SecuritySettings struct {
	MaxLoginAttempts    int           `mapstructure:"max_login_attempts"`
	LockoutDuration     time.Duration `mapstructure:"lockout_duration"`
	PasswordHistory     int           `mapstructure:"password_history"`
	PasswordExpiry      time.Duration `mapstructure:"password_expiry"`
	PasswordMinStrength int           `mapstructure:"password_min_strength"`
	ResetTokenTTL       time.Duration `mapstructure:"reset_token_ttl"`
	AuditBuffer         int           `mapstructure:"audit_buffer"`
}

// EncryptionSettings holds the field-level encryption master key.
type EncryptionSettings struct {
	MasterKey string `mapstructure:"master_key"`
}

type JWTSettings struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("HOSP")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.attempt_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.enabled",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"security.max_login_attempts",
		"security.lockout_duration",
		"security.password_history",
		"security.password_expiry",
		"security.password_min_strength",
		"security.reset_token_ttl",
		"security.audit_buffer",
		"encryption.master_key",
		"telemetry.metrics_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.tracing_enabled",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Encryption.MasterKey == "" {
		return fmt.Errorf("config: encryption.master_key is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if c.Security.MaxLoginAttempts < 1 {
		return fmt.Errorf("config: security.max_login_attempts must be positive")
	}
	if c.Security.LockoutDuration <= 0 {
		return fmt.Errorf("config: security.lockout_duration must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hospital-records")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "hosp")
	v.SetDefault("postgres.password", "hosp_password")
	v.SetDefault("postgres.database", "hospital")
	v.SetDefault("postgres.schema", "hosp")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.attempt_prefix", "hosp:login_attempts")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "hosp")
	v.SetDefault("kafka.enabled", false)

	v.SetDefault("jwt.issuer", "hospital-records")
	v.SetDefault("jwt.access_token_ttl", "15m")

	v.SetDefault("security.max_login_attempts", 3)
	v.SetDefault("security.lockout_duration", "15m")
	v.SetDefault("security.password_history", 5)
	v.SetDefault("security.password_expiry", "2160h") // 90 days
	v.SetDefault("security.password_min_strength", 0)
	v.SetDefault("security.reset_token_ttl", "24h")
	v.SetDefault("security.audit_buffer", 100)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "hospital-records")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "HOSP_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
