package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"
	_ "time/tzdata" // scheduler time zones on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`
	HTTPAddr    string `yaml:"http_addr"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Model     ModelConfig     `yaml:"model"`
	Brevo     BrevoConfig     `yaml:"brevo"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Kafka     KafkaConfig     `yaml:"kafka"`

	DashboardBaseURL string `yaml:"dashboard_base_url"`
}

type SchedulerConfig struct {
	SweepIntervalMinutes     int    `yaml:"sweep_interval_minutes"`
	DefaultSLAHours          int    `yaml:"default_sla_hours"`
	Timezone                 string `yaml:"timezone"`
	ReevaluationWindowHours  int    `yaml:"reevaluation_window_hours"`
	Concurrency              int    `yaml:"concurrency"`
	EvaluationTimeoutSeconds int    `yaml:"evaluation_timeout_seconds"`
}

type ModelConfig struct {
	Path     string `yaml:"path"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Key    string `yaml:"s3_key"`
	Seed     uint64 `yaml:"seed"`
	Watch    bool   `yaml:"watch"`
}

type BrevoConfig struct {
	APIKey      string `yaml:"api_key"`
	SenderEmail string `yaml:"sender_email"`
	SenderName  string `yaml:"sender_name"`
	BaseURL     string `yaml:"base_url"`
}

type TelegramConfig struct {
	Token           string `yaml:"token"`
	AdminTelegramID int64  `yaml:"admin_telegram_id"`
	OpsChatID       int64  `yaml:"ops_chat_id"`
}

type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	DecisionsTopic string   `yaml:"decisions_topic"`
}

func defaults() *AppConfig {
	return &AppConfig{
		LogLevel:    "info",
		Environment: "development",
		HTTPAddr:    ":8080",
		Scheduler: SchedulerConfig{
			SweepIntervalMinutes:     60,
			DefaultSLAHours:          72,
			Timezone:                 "Asia/Kolkata",
			ReevaluationWindowHours:  24,
			Concurrency:              4,
			EvaluationTimeoutSeconds: 60,
		},
		Model: ModelConfig{
			Path:  "models/decision_model.json",
			S3Key: "models/decision_model.json",
			Seed:  42,
		},
		Brevo: BrevoConfig{
			SenderEmail: "noreply@civicagent.app",
			SenderName:  "Civic Agent",
			BaseURL:     "https://api.brevo.com/v3",
		},
		Kafka: KafkaConfig{
			DecisionsTopic: "complaint-decisions",
		},
		DashboardBaseURL: "https://civicagent.vercel.app",
	}
}

// Load reads configuration from built-in defaults, then an optional YAML file
// (CONFIG_FILE, default config.yaml), then environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := defaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	} else if os.Getenv("CONFIG_FILE") != "" {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("ENVIRONMENT", &cfg.Environment)
	envString("HTTP_ADDR", &cfg.HTTPAddr)
	envString("DASHBOARD_BASE_URL", &cfg.DashboardBaseURL)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)

	envString("SCHEDULER_TIMEZONE", &cfg.Scheduler.Timezone)
	ints := []struct {
		name string
		dst  *int
	}{
		{"SWEEP_INTERVAL_MINUTES", &cfg.Scheduler.SweepIntervalMinutes},
		{"DEFAULT_SLA_HOURS", &cfg.Scheduler.DefaultSLAHours},
		{"REEVALUATION_WINDOW_HOURS", &cfg.Scheduler.ReevaluationWindowHours},
		{"SWEEP_CONCURRENCY", &cfg.Scheduler.Concurrency},
		{"EVALUATION_TIMEOUT_SECONDS", &cfg.Scheduler.EvaluationTimeoutSeconds},
	}
	for _, i := range ints {
		if err := envInt(i.name, i.dst); err != nil {
			return err
		}
	}

	envString("MODEL_PATH", &cfg.Model.Path)
	envString("MODEL_S3_BUCKET", &cfg.Model.S3Bucket)
	envString("MODEL_S3_KEY", &cfg.Model.S3Key)
	if v := os.Getenv("MODEL_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MODEL_SEED: %w", err)
		}
		cfg.Model.Seed = seed
	}
	if v := os.Getenv("MODEL_WATCH"); v != "" {
		watch, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MODEL_WATCH: %w", err)
		}
		cfg.Model.Watch = watch
	}

	envString("BREVO_API_KEY", &cfg.Brevo.APIKey)
	envString("BREVO_SENDER_EMAIL", &cfg.Brevo.SenderEmail)
	envString("BREVO_SENDER_NAME", &cfg.Brevo.SenderName)
	envString("BREVO_BASE_URL", &cfg.Brevo.BaseURL)

	envString("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	if err := envInt64("ADMIN_TELEGRAM_ID", &cfg.Telegram.AdminTelegramID); err != nil {
		return err
	}
	if err := envInt64("OPS_CHAT_ID", &cfg.Telegram.OpsChatID); err != nil {
		return err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	envString("KAFKA_DECISIONS_TOPIC", &cfg.Kafka.DecisionsTopic)
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *AppConfig) Validate() error {
	s := c.Scheduler
	if s.SweepIntervalMinutes <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be positive, got %d", s.SweepIntervalMinutes)
	}
	if s.DefaultSLAHours <= 0 {
		return fmt.Errorf("DEFAULT_SLA_HOURS must be positive, got %d", s.DefaultSLAHours)
	}
	if s.ReevaluationWindowHours <= 0 {
		return fmt.Errorf("REEVALUATION_WINDOW_HOURS must be positive, got %d", s.ReevaluationWindowHours)
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive, got %d", s.Concurrency)
	}
	if s.EvaluationTimeoutSeconds < 0 {
		return fmt.Errorf("EVALUATION_TIMEOUT_SECONDS must not be negative, got %d", s.EvaluationTimeoutSeconds)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", s.Timezone, err)
	}
	return nil
}

// RequireDatabase is checked by commands that talk to PostgreSQL.
func (c *AppConfig) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}

// Location returns the scheduler time zone. Validate has already checked it.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *AppConfig) SweepInterval() time.Duration {
	return time.Duration(c.Scheduler.SweepIntervalMinutes) * time.Minute
}

func (c *AppConfig) ReevaluationWindow() time.Duration {
	return time.Duration(c.Scheduler.ReevaluationWindowHours) * time.Hour
}

func (c *AppConfig) EvaluationTimeout() time.Duration {
	return time.Duration(c.Scheduler.EvaluationTimeoutSeconds) * time.Second
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envInt64(name string, dst *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
