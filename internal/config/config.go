package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Catalog     CatalogConfig
	Geolocation GeolocationConfig
	SpeedTest   SpeedTestConfig
	Events      EventsConfig
	CORS        CORSConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	StaticDir       string // built web client, empty to serve the API only
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// CatalogConfig selects where the city and ISP catalog is loaded from.
// DatabaseURL wins over Path when both are set; with neither the embedded
// seed catalog is used.
type CatalogConfig struct {
	Path        string
	DatabaseURL string
}

// GeolocationConfig configures the IP geolocation provider.
type GeolocationConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// SpeedTestConfig configures server discovery and transfer sizes.
type SpeedTestConfig struct {
	LocateURL       string
	FallbackURL     string
	PingSamples     int
	DownloadBytes   int64
	UploadBytes     int64
	LocateTimeout   time.Duration
	TransferTimeout time.Duration
}

// EventsConfig configures the optional Kafka event sink.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// CORSConfig lists the origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultGeolocationURL     = "http://api.ipstack.com"
	defaultGeolocationTimeout = 10 * time.Second

	defaultLocateURL       = "https://locate.measurementlab.net/v2/nearest/ndt/ndt7"
	defaultFallbackURL     = "https://speed.cloudflare.com"
	defaultPingSamples     = 5
	defaultDownloadBytes   = 10_000_000
	defaultUploadBytes     = 5_000_000
	defaultLocateTimeout   = 5 * time.Second
	defaultTransferTimeout = 30 * time.Second

	defaultEventsTopic = "isp-signals"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. A .env file in the working directory is read first
// when present; variables already set in the environment take precedence.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			StaticDir:       os.Getenv("WEB_DIR"),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Catalog: CatalogConfig{
			Path: os.Getenv("CATALOG_PATH"),
		},
		Geolocation: GeolocationConfig{
			APIKey:  os.Getenv("IPSTACK_API_KEY"),
			BaseURL: getEnv("IPSTACK_BASE_URL", defaultGeolocationURL),
			Timeout: defaultGeolocationTimeout,
		},
		SpeedTest: SpeedTestConfig{
			LocateURL:       getEnv("SPEEDTEST_LOCATE_URL", defaultLocateURL),
			FallbackURL:     getEnv("SPEEDTEST_FALLBACK_URL", defaultFallbackURL),
			PingSamples:     defaultPingSamples,
			DownloadBytes:   defaultDownloadBytes,
			UploadBytes:     defaultUploadBytes,
			LocateTimeout:   defaultLocateTimeout,
			TransferTimeout: defaultTransferTimeout,
		},
		Events: EventsConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", defaultEventsTopic),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
	}

	dbURL, err := databaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg.Catalog.DatabaseURL = dbURL

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", &cfg.Server.ShutdownTimeout},
		{"GEOLOCATION_TIMEOUT_SECONDS", &cfg.Geolocation.Timeout},
		{"SPEEDTEST_LOCATE_TIMEOUT_SECONDS", &cfg.SpeedTest.LocateTimeout},
		{"SPEEDTEST_TRANSFER_TIMEOUT_SECONDS", &cfg.SpeedTest.TransferTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if v := os.Getenv("SPEEDTEST_PING_SAMPLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid SPEEDTEST_PING_SAMPLES: must be a positive integer")
		}
		cfg.SpeedTest.PingSamples = n
	}

	if v := os.Getenv("SPEEDTEST_DOWNLOAD_BYTES"); v != "" {
		n, err := parseBytes(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SPEEDTEST_DOWNLOAD_BYTES: %w", err)
		}
		cfg.SpeedTest.DownloadBytes = n
	}

	if v := os.Getenv("SPEEDTEST_UPLOAD_BYTES"); v != "" {
		n, err := parseBytes(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SPEEDTEST_UPLOAD_BYTES: %w", err)
		}
		cfg.SpeedTest.UploadBytes = n
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// databaseURL returns DATABASE_URL, or on Cloud Run a Unix socket connection
// string for the Cloud SQL instance named by INSTANCE_CONNECTION_NAME. It is
// empty when neither is set.
func databaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	// Cloud Run mounts Cloud SQL instances at /cloudsql/[INSTANCE_CONNECTION_NAME]
	socket := "/cloudsql/" + instance
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable", socket, user, password, name), nil
	}
	// IAM authentication needs no password.
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socket, user, name), nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseBytes(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
