package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Scheduler  SchedulerConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type SchedulerConfig struct {
	DispatchBatchSize  int
	SafetyTickInterval time.Duration
	LockTTL            time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	cors_origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		cors_origins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.2.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: cors_origins,
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "postflow.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "postflow:"),
	}

	schedulerCfg := SchedulerConfig{
		DispatchBatchSize:  getEnvInt("SCHEDULER_DISPATCH_BATCH_SIZE", 100),
		SafetyTickInterval: getEnvDuration("SCHEDULER_SAFETY_TICK_INTERVAL", 5*time.Minute),
		LockTTL:            getEnvDuration("SCHEDULER_LOCK_TTL", 30*time.Second),
	}

	cfg := &Config{
		App:       appCfg,
		Paths:     pathsCfg,
		Database:  dbCfg,
		Scheduler: schedulerCfg,
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("PUBLISH_WORKER_POOL_SIZE", 20),
			QueueSize: getEnvInt("PUBLISH_WORKER_QUEUE_SIZE", 1000),
		},
	}

	Global = cfg
	return cfg, nil
}
