package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Ian-Chin/iunami-ai-extension/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

// Defaults shared by the server and the CLI.
const (
	DefaultNotionAPIURL  = "https://api.notion.com/v1"
	DefaultNotionVersion = "2022-06-28"
	DefaultAIAPIURL      = "https://api.groq.com/openai/v1"
	DefaultAIModel       = "llama-3.3-70b-versatile"
)

// Config holds application configuration values
type Config struct {
	ServerPort     string
	JWTSecret      string
	JWTExpiration  time.Duration
	MetadataDbDir  string
	MetadataDbFile string

	// TokenSealingKey seals Notion tokens at rest. Falls back to JWTSecret.
	TokenSealingKey string

	NotionAPIURL    string
	NotionVersion   string
	NotionRateLimit float64 // requests per second

	AIAPIURL string
	AIAPIKey string
	AIModel  string

	// ParseTimeout bounds schema fetch + model call on the AI path.
	ParseTimeout time.Duration

	SchemaCacheSize  int
	InteractionLimit int
	ScanMaxDepth     int
	ScanConcurrency  int

	// ParseRateLimit is the number of AI parse calls a session may make per minute.
	ParseRateLimit int

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables.
// It uses a .env file for local development if present (ignores it for production).
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	// Attempt to load .env file if in development environment (skip in production)
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTExpiration:    time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24*30)),
		MetadataDbDir:    getEnv("DATABASE_DIRECTORY", "data"),
		MetadataDbFile:   getEnv("DATABASE_DIRECTORY_FILE", "quickadd.db"),
		TokenSealingKey:  getEnv("TOKEN_SEALING_KEY", ""),
		NotionAPIURL:     strings.TrimSuffix(getEnv("NOTION_API_URL", DefaultNotionAPIURL), "/"),
		NotionVersion:    getEnv("NOTION_VERSION", DefaultNotionVersion),
		NotionRateLimit:  getEnvFloat("NOTION_RATE_LIMIT", 3),
		AIAPIURL:         strings.TrimSuffix(getEnv("AI_API_URL", DefaultAIAPIURL), "/"),
		AIAPIKey:         getEnv("AI_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", DefaultAIModel),
		ParseTimeout:     time.Second * time.Duration(getEnvInt("PARSE_TIMEOUT_SECONDS", 30)),
		SchemaCacheSize:  getEnvInt("SCHEMA_CACHE_SIZE", 256),
		InteractionLimit: getEnvInt("INTERACTION_LIMIT", 1024),
		ScanMaxDepth:     getEnvInt("SCAN_MAX_DEPTH", 4),
		ScanConcurrency:  getEnvInt("SCAN_CONCURRENCY", 3),
		ParseRateLimit:   getEnvInt("PARSE_RATE_LIMIT", 20),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "chrome-extension://*")),
	}
	if cfg.TokenSealingKey == "" {
		cfg.TokenSealingKey = cfg.JWTSecret
	}

	customLog.Printf("Configuration loaded. Port: %s, Notion: %s (%s), Model: %s",
		cfg.ServerPort, cfg.NotionAPIURL, cfg.NotionVersion, cfg.AIModel)
	return cfg, nil
}

// ValidateServer checks the values only the HTTP server needs.
func (c *Config) ValidateServer() error {
	// Critical: Ensure JWT Secret is set
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable must be set")
	}
	if len(c.JWTSecret) < 16 {
		customLog.Warnln("WARNING: JWT_SECRET is shorter than 16 characters")
	}
	if c.AIAPIKey == "" {
		customLog.Warnln("WARNING: AI_API_KEY is not set; natural-language entry will fail")
	}
	return nil
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		customLog.Warnf("Invalid %s '%s'. Using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		customLog.Warnf("Invalid %s '%s'. Using default %v. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return f
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
