package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Classifier    ClassifierConfig    `mapstructure:"classifier"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
}

type ClassifierConfig struct {
	Provider string        `mapstructure:"provider" validate:"required,oneof=openrouter gemini"`
	APIURL   string        `mapstructure:"api_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Referer  string        `mapstructure:"referer"`
	Title    string        `mapstructure:"title"`
}

type QueueConfig struct {
	Driver        string        `mapstructure:"driver" validate:"required,oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
	BufferSize    int           `mapstructure:"buffer_size"`
}

type WorkerConfig struct {
	MaxWorkers        int           `mapstructure:"max_workers"`
	JobQueueSize      int           `mapstructure:"job_queue_size"`
	WorkerPoolSize    int           `mapstructure:"worker_pool_size"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	ReplayInterval    time.Duration `mapstructure:"replay_interval"`
	ReplayGrace       time.Duration `mapstructure:"replay_grace"`
	ReplayBatch       int           `mapstructure:"replay_batch"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type PipelineConfig struct {
	AmountMin         float64 `mapstructure:"amount_min"`
	AmountMax         float64 `mapstructure:"amount_max"`
	NoteMaxLength     int     `mapstructure:"note_max_length"`
	CategoryMaxLength int     `mapstructure:"category_max_length"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config for container deployments where no
// config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 24*time.Hour),
		},
		Classifier: ClassifierConfig{
			Provider: getEnv("CLASSIFIER_PROVIDER", "openrouter"),
			APIURL:   getEnv("CLASSIFIER_API_URL", "https://openrouter.ai/api/v1"),
			APIKey:   getEnv("CLASSIFIER_API_KEY", ""),
			Model:    getEnv("CLASSIFIER_MODEL", ""),
			Timeout:  getEnvAsDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
			Referer:  getEnv("CLASSIFIER_REFERER", ""),
			Title:    getEnv("CLASSIFIER_TITLE", "SMS Expense Tracker"),
		},
		Queue: QueueConfig{
			Driver:        getEnv("QUEUE_DRIVER", "redis"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			Key:           getEnv("QUEUE_KEY", "rawmessage:created"),
			BlockTimeout:  getEnvAsDuration("QUEUE_BLOCK_TIMEOUT", 5*time.Second),
			BufferSize:    getEnvAsInt("QUEUE_BUFFER_SIZE", 1000),
		},
		Worker: WorkerConfig{
			MaxWorkers:        getEnvAsInt("WORKER_MAX_WORKERS", 10),
			JobQueueSize:      getEnvAsInt("WORKER_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 10),
			MaxAttempts:       getEnvAsInt("WORKER_MAX_ATTEMPTS", 5),
			RetryBackoff:      getEnvAsDuration("WORKER_RETRY_BACKOFF", 2*time.Second),
			ReplayInterval:    getEnvAsDuration("WORKER_REPLAY_INTERVAL", time.Minute),
			ReplayGrace:       getEnvAsDuration("WORKER_REPLAY_GRACE", 2*time.Minute),
			ReplayBatch:       getEnvAsInt("WORKER_REPLAY_BATCH", 100),
			ReconcileInterval: getEnvAsDuration("WORKER_RECONCILE_INTERVAL", 5*time.Minute),
		},
		Pipeline: PipelineConfig{
			AmountMin:         getEnvAsFloat("PIPELINE_AMOUNT_MIN", 0.01),
			AmountMax:         getEnvAsFloat("PIPELINE_AMOUNT_MAX", 999999999.99),
			NoteMaxLength:     getEnvAsInt("PIPELINE_NOTE_MAX_LENGTH", 500),
			CategoryMaxLength: getEnvAsInt("PIPELINE_CATEGORY_MAX_LENGTH", 255),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Classifier.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("classifier config: %v", err))
	}

	if err := c.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("queue config: %v", err))
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("pipeline config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.AccessTokenDuration < time.Minute {
		return errors.New("access_token_duration must be at least 1m")
	}
	return nil
}

func (c *ClassifierConfig) Validate() error {
	switch c.Provider {
	case "openrouter":
		if c.APIURL == "" {
			return errors.New("api_url is required for openrouter")
		}
		if _, err := url.ParseRequestURI(c.APIURL); err != nil {
			return fmt.Errorf("invalid api_url: %w", err)
		}
	case "gemini":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return errors.New("api_key is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

func (c *QueueConfig) Validate() error {
	switch c.Driver {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

func (c *PipelineConfig) Validate() error {
	if c.AmountMin <= 0 {
		return errors.New("amount_min must be positive")
	}
	if c.AmountMax < c.AmountMin {
		return errors.New("amount_max must be >= amount_min")
	}
	// expenses.amount is NUMERIC(14,2)
	if c.AmountMax >= 1e12 {
		return errors.New("amount_max must be below 1e12")
	}
	// expenses.note is VARCHAR(500), expenses.category is VARCHAR(255)
	if c.NoteMaxLength <= 0 || c.NoteMaxLength > 500 {
		return errors.New("note_max_length must be between 1 and 500")
	}
	if c.CategoryMaxLength <= 0 || c.CategoryMaxLength > 255 {
		return errors.New("category_max_length must be between 1 and 255")
	}
	return nil
}
