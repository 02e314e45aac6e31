package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string
	DataDir      string

	// Trading session
	Symbols        []string
	StrategyConfig string // named strategy config to run
	InitialCash    float64
	LookbackDays   int
	CycleInterval  time.Duration
	AdapterTimeout time.Duration
	OrderTimeout   time.Duration

	// Fusion thresholds on the [-100,100] combined scale
	BuyThreshold  float64
	SellThreshold float64

	// Broker
	BrokerMode       string // "paper" or "remote"
	BrokerServiceURL string

	// Session boundaries (cron specs with seconds field)
	SessionResetCron string
	SessionCloseCron string

	// Collaborator config file locations
	StrategyConfigPath string
	RiskLimitsPath     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8001),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabasePath:       getEnv("DATABASE_PATH", "./data/ledger.db"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		Symbols:            getEnvAsList("SYMBOLS", []string{"AAPL", "MSFT", "GOOGL"}),
		StrategyConfig:     getEnv("STRATEGY_CONFIG", "balanced"),
		InitialCash:        getEnvAsFloat("INITIAL_CASH", 100000),
		LookbackDays:       getEnvAsInt("LOOKBACK_DAYS", 120),
		CycleInterval:      getEnvAsDuration("CYCLE_INTERVAL", 30*time.Second),
		AdapterTimeout:     getEnvAsDuration("ADAPTER_TIMEOUT", 2*time.Second),
		OrderTimeout:       getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
		BuyThreshold:       getEnvAsFloat("FUSION_BUY_THRESHOLD", 15),
		SellThreshold:      getEnvAsFloat("FUSION_SELL_THRESHOLD", 15),
		BrokerMode:         getEnv("BROKER_MODE", "paper"),
		BrokerServiceURL:   getEnv("BROKER_SERVICE_URL", "http://localhost:9001"),
		SessionResetCron:   getEnv("SESSION_RESET_CRON", "0 30 9 * * MON-FRI"),
		SessionCloseCron:   getEnv("SESSION_CLOSE_CRON", "0 0 16 * * MON-FRI"),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./data/strategy_configs.json"),
		RiskLimitsPath:     getEnv("RISK_LIMITS_PATH", "./data/risk_limits.json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must name at least one symbol")
	}
	if c.InitialCash <= 0 {
		return fmt.Errorf("INITIAL_CASH must be positive")
	}
	if c.CycleInterval <= 0 {
		return fmt.Errorf("CYCLE_INTERVAL must be positive")
	}
	if c.BuyThreshold < 0 || c.SellThreshold < 0 {
		return fmt.Errorf("fusion thresholds must be non-negative")
	}
	if c.BrokerMode != "paper" && c.BrokerMode != "remote" {
		return fmt.Errorf("BROKER_MODE must be \"paper\" or \"remote\", got %q", c.BrokerMode)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain numbers are treated as seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
