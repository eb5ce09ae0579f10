package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends understood by recordstore.Open.
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config contains all runtime settings for the assistant service and the
// embedded task service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	Environment      string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	StoreBackend string
	DataDir      string
	SQLitePath   string
	DatabaseURL  string
	WatchStore   bool

	GeminiAPIKey     string
	GeminiModel      string
	GeminiFallback   string
	GeminiBaseURL    string
	LLMTimeout       time.Duration
	LLMMaxRetries    int
	PromptsPath      string
	ChatHistoryLimit int

	BackendURL         string
	TaskServiceTimeout time.Duration

	TaskBindAddr          string
	TaskDatabaseURL       string
	ReminderSweepInterval time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// DevMode reports whether development-only routes are enabled.
func (c Config) DevMode() bool {
	return c.Environment == "development"
}

// Load reads the optional config file named by SABA_CONFIG, then environment
// variables, and applies safe defaults.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("SABA_CONFIG")))
}

// LoadFile is Load with an explicit config file path. An empty path skips the
// file. Environment variables win over file values.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		BindAddr:         stringValue(v, "app_bind_addr"),
		MetricsNamespace: stringValue(v, "app_metrics_namespace"),
		Environment:      strings.ToLower(stringValue(v, "app_env")),
		LogLevel:         strings.ToLower(stringValue(v, "log_level")),
		LogFormat:        strings.ToLower(stringValue(v, "log_format")),
		StoreBackend:     strings.ToLower(stringValue(v, "saba_store_backend")),
		DataDir:          stringValue(v, "saba_data_dir"),
		SQLitePath:       stringValue(v, "saba_sqlite_path"),
		DatabaseURL:      stringValue(v, "database_url"),
		GeminiAPIKey:     stringValue(v, "gemini_api_key"),
		GeminiModel:      stringValue(v, "gemini_model"),
		GeminiFallback:   stringValue(v, "gemini_fallback_model"),
		GeminiBaseURL:    strings.TrimRight(stringValue(v, "gemini_base_url"), "/"),
		PromptsPath:      stringValue(v, "saba_prompts_path"),
		BackendURL:       strings.TrimRight(stringValue(v, "backend_url"), "/"),
		TaskBindAddr:     stringValue(v, "tasksvc_bind_addr"),
		TaskDatabaseURL:  stringValue(v, "tasksvc_database_url"),
		KafkaBrokers:     listValue(v, "kafka_brokers"),
		KafkaTopic:       stringValue(v, "kafka_topic"),
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = cfg.DataDir + "/saba.db"
	}

	var err error
	if cfg.ShutdownTimeout, err = durationValue(v, "app_shutdown_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.LLMTimeout, err = durationValue(v, "llm_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.TaskServiceTimeout, err = durationValue(v, "task_service_timeout"); err != nil {
		return Config{}, err
	}
	if cfg.ReminderSweepInterval, err = durationValue(v, "reminder_sweep_interval"); err != nil {
		return Config{}, err
	}
	if cfg.LLMMaxRetries, err = intValue(v, "llm_max_retries"); err != nil {
		return Config{}, err
	}
	if cfg.ChatHistoryLimit, err = intValue(v, "chat_history_limit"); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolValue(v, "app_allow_any_origin"); err != nil {
		return Config{}, err
	}
	if cfg.WatchStore, err = boolValue(v, "saba_watch_store"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_bind_addr", ":8080")
	v.SetDefault("app_shutdown_timeout", "15s")
	v.SetDefault("app_metrics_namespace", "saba")
	v.SetDefault("app_env", "production")
	v.SetDefault("app_allow_any_origin", "false")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "pretty")
	v.SetDefault("saba_store_backend", StoreFile)
	v.SetDefault("saba_data_dir", "data")
	v.SetDefault("saba_sqlite_path", "")
	v.SetDefault("saba_watch_store", "false")
	v.SetDefault("database_url", "")
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("gemini_fallback_model", "")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm_timeout", "60s")
	v.SetDefault("llm_max_retries", "2")
	v.SetDefault("saba_prompts_path", "")
	v.SetDefault("chat_history_limit", "20")
	v.SetDefault("backend_url", "http://localhost:5000")
	v.SetDefault("task_service_timeout", "10s")
	v.SetDefault("tasksvc_bind_addr", ":5000")
	v.SetDefault("tasksvc_database_url", "")
	v.SetDefault("reminder_sweep_interval", "30s")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "saba.reminders")
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case StoreFile, StoreSQLite, StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("SABA_STORE_BACKEND %q is not one of file, sqlite, postgres, memory", c.StoreBackend)
	}
	switch c.LogFormat {
	case "pretty", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of pretty, json, text", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.TaskServiceTimeout <= 0 {
		return fmt.Errorf("TASK_SERVICE_TIMEOUT must be positive")
	}
	if c.ReminderSweepInterval < time.Second {
		return fmt.Errorf("REMINDER_SWEEP_INTERVAL must be at least 1s")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if c.ChatHistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL must not be empty")
	}
	return nil
}

func stringValue(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func listValue(v *viper.Viper, key string) []string {
	raw := stringValue(v, key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(stringValue(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", strings.ToUpper(key), err)
	}
	return d, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(stringValue(v, key))
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", strings.ToUpper(key), err)
	}
	return n, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	switch strings.ToLower(stringValue(v, key)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", strings.ToUpper(key))
	}
}
