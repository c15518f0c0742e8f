package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IGNACHECK_AI_PRIMARY_API_KEY.
const EnvPrefix = "IGNACHECK"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Minio    MinioConfig    `mapstructure:"minio"`
	Nats     NatsConfig     `mapstructure:"nats"`
	AI       AIConfig       `mapstructure:"ai"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port            int               `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string          `mapstructure:"allowed_origins"`
	APIKeys         map[string]string `mapstructure:"api_keys"`
	// SubmitBurst/SubmitPerMinute throttle batch submissions per tenant.
	SubmitBurst     int `mapstructure:"submit_burst" validate:"min=0"`
	SubmitPerMinute int `mapstructure:"submit_per_minute" validate:"min=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory mysql postgres"`
	Host     string `mapstructure:"host" validate:"required_unless=Driver memory"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_unless=Driver memory"`
	SSLMode  string `mapstructure:"sslmode"`
}

type MinioConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name" validate:"required_if=Enabled true"`
	Region     string `mapstructure:"region"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

type NatsConfig struct {
	URL     string        `mapstructure:"url"`
	Subject string        `mapstructure:"subject"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig describes one reasoning provider. The key is never read
// from anywhere but configuration or the environment.
type ProviderConfig struct {
	Name        string        `mapstructure:"name"`
	Kind        string        `mapstructure:"kind" validate:"omitempty,oneof=openai azure local"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey      string        `mapstructure:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens" validate:"min=0"`
	Temperature float64       `mapstructure:"temperature" validate:"min=0,max=1"`
	Timeout     time.Duration `mapstructure:"timeout"`
	JSONMode    bool          `mapstructure:"json_mode"`
}

type AIConfig struct {
	Primary           ProviderConfig `mapstructure:"primary"`
	Fallback          ProviderConfig `mapstructure:"fallback"`
	FallbackEnabled   bool           `mapstructure:"fallback_enabled"`
	InterControlDelay time.Duration  `mapstructure:"inter_control_delay" validate:"min=0"`
	MaxExcerptRunes   int            `mapstructure:"max_excerpt_runes" validate:"min=0"`
}

type JobsConfig struct {
	MaxRetained int `mapstructure:"max_retained" validate:"min=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.submit_burst", 5)
	v.SetDefault("server.submit_per_minute", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.subject", "ignacheck.analysis.completed")
	v.SetDefault("nats.timeout", 5*time.Second)
	v.SetDefault("ai.primary.kind", "openai")
	v.SetDefault("ai.primary.model", "gpt-4o")
	v.SetDefault("ai.primary.max_tokens", 2048)
	v.SetDefault("ai.primary.temperature", 0.1)
	v.SetDefault("ai.primary.timeout", 60*time.Second)
	v.SetDefault("ai.primary.json_mode", true)
	v.SetDefault("ai.fallback.kind", "azure")
	v.SetDefault("ai.fallback.max_tokens", 2048)
	v.SetDefault("ai.fallback.temperature", 0.1)
	v.SetDefault("ai.fallback.timeout", 60*time.Second)
	v.SetDefault("ai.fallback_enabled", false)
	v.SetDefault("ai.inter_control_delay", time.Second)
	v.SetDefault("jobs.max_retained", 256)
}

// bindEnv registers every known key so env overrides work even when the key
// is absent from the file.
func bindEnv(v *viper.Viper) error {
	for _, key := range []string{
		"server.port", "server.shutdown_timeout", "server.allowed_origins", "server.submit_burst", "server.submit_per_minute",
		"log.level", "log.pretty",
		"database.driver", "database.host", "database.port", "database.user", "database.password", "database.name", "database.sslmode",
		"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket_name", "minio.region", "minio.use_ssl",
		"nats.url", "nats.subject", "nats.timeout",
		"ai.fallback_enabled", "ai.inter_control_delay", "ai.max_excerpt_runes",
		"jobs.max_retained",
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	for _, p := range []string{"primary", "fallback"} {
		for _, k := range []string{"name", "kind", "model", "base_url", "api_key", "max_tokens", "temperature", "timeout", "json_mode"} {
			if err := v.BindEnv("ai." + p + "." + k); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads path (optional; empty means defaults plus environment) and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags plus the rules that span sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.AI.FallbackEnabled && c.AI.Fallback.Kind == "" {
		return errors.New("invalid config: ai.fallback.kind is required when fallback is enabled")
	}
	if err := c.AI.Primary.checkEndpoint("primary"); err != nil {
		return err
	}
	if c.AI.FallbackEnabled {
		return c.AI.Fallback.checkEndpoint("fallback")
	}
	return nil
}

func (p ProviderConfig) checkEndpoint(role string) error {
	if (p.Kind == "azure" || p.Kind == "local") && p.BaseURL == "" {
		return fmt.Errorf("invalid config: ai.%s.base_url is required for %s providers", role, p.Kind)
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.portOr(3306),
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL DSN.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.portOr(5432)),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": []string{c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

func (d DatabaseConfig) portOr(def int) int {
	if d.Port == 0 {
		return def
	}
	return d.Port
}
