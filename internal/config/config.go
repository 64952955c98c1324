package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/maltedev/storefront-auditor/internal/sizes"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Report   ReportConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxConcurrent   int
	AllowedOrigins  []string
}

type ScraperConfig struct {
	MaxProducts int
	MaxPages    int
	WaitMin     time.Duration
	WaitMax     time.Duration
	MaxRetries  int
	Workers     int
	Adaptive    bool
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type ReportConfig struct {
	ExpectedSizes      sizes.Catalog
	OutputDir          string
	DumpFile           string
	ReportFile         string
	DetailedReportFile string
}

// DumpPath is the JSON dump location inside OutputDir.
func (r ReportConfig) DumpPath() string {
	return filepath.Join(r.OutputDir, r.DumpFile)
}

func (r ReportConfig) ReportPath() string {
	return filepath.Join(r.OutputDir, r.ReportFile)
}

func (r ReportConfig) DetailedReportPath() string {
	return filepath.Join(r.OutputDir, r.DetailedReportFile)
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	Stream        string
	ConsumerGroup string
	ConsumerName  string
}

// NotifyConfig configures where the audit consumer forwards completed audits.
type NotifyConfig struct {
	WebhookURL string
	Timeout    time.Duration
	MaxRetries int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; variables that are already
// set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxConcurrent:   getIntOrDefault("SERVER_MAX_CONCURRENT_AUDITS", 1),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			MaxProducts: getIntOrDefault("SCRAPER_MAX_PRODUCTS", 10),
			MaxPages:    getIntOrDefault("SCRAPER_MAX_PAGES", 30),
			WaitMin:     getDurationOrDefault("SCRAPER_WAIT_MIN", time.Second),
			WaitMax:     getDurationOrDefault("SCRAPER_WAIT_MAX", 2500*time.Millisecond),
			MaxRetries:  getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			Workers:     getIntOrDefault("SCRAPER_WORKERS", 1),
			Adaptive:    getBoolOrDefault("SCRAPER_ADAPTIVE", true),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "tr-TR,tr;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Istanbul"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "tr-TR"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Report: ReportConfig{
			ExpectedSizes:      getCatalogOrDefault("EXPECTED_SIZES", sizes.DefaultCatalog()),
			OutputDir:          getEnvOrDefault("REPORT_OUTPUT_DIR", "."),
			DumpFile:           getEnvOrDefault("REPORT_DUMP_FILE", "scraped_products.json"),
			ReportFile:         getEnvOrDefault("REPORT_FILE", "report.xlsx"),
			DetailedReportFile: getEnvOrDefault("REPORT_DETAILED_FILE", "detailed_report.xlsx"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "storefront_auditor"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:       getBoolOrDefault("REDIS_ENABLED", false),
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			Stream:        getEnvOrDefault("REDIS_STREAM", "stream:storefront_audit"),
			ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", "audit-consumer-group"),
			ConsumerName:  getEnvOrDefault("REDIS_CONSUMER_NAME", "consumer-1"),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnvOrDefault("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    getDurationOrDefault("NOTIFY_TIMEOUT", 30*time.Second),
			MaxRetries: getIntOrDefault("NOTIFY_MAX_RETRIES", 3),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxProducts < 1 {
		return fmt.Errorf("SCRAPER_MAX_PRODUCTS must be at least 1")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.MaxRetries < 1 {
		return fmt.Errorf("SCRAPER_MAX_RETRIES must be at least 1")
	}

	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.WaitMin > c.Scraper.WaitMax {
		return fmt.Errorf("SCRAPER_WAIT_MIN cannot be greater than SCRAPER_WAIT_MAX")
	}

	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("SERVER_MAX_CONCURRENT_AUDITS must be at least 1")
	}

	if c.Report.DumpFile == "" || c.Report.ReportFile == "" {
		return fmt.Errorf("REPORT_DUMP_FILE and REPORT_FILE are required")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// getCatalogOrDefault falls back when the variable is unset or lists no
// sizes at all.
func getCatalogOrDefault(key string, defaultValue sizes.Catalog) sizes.Catalog {
	if value := os.Getenv(key); value != "" {
		if catalog := sizes.ParseCatalog(value); len(catalog) > 0 {
			return catalog
		}
	}
	return defaultValue
}
