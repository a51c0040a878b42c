package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Gemini       GeminiConfig
	Oracle       OracleConfig
	Sheet        SheetConfig
	ProfilesPath string
	LogLevel     string
}

type ServerConfig struct {
	Host      string
	Port      int
	StaticDir string
	MaxUpload int
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type OracleConfig struct {
	MaxRetries int
	Backoff    time.Duration
	ChunkSize  int
}

type SheetConfig struct {
	Workbook   string
	BatchSize  int
	BatchPause time.Duration
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvAsInt("SERVER_PORT", 8080),
			StaticDir: getEnv("STATIC_DIR", ""),
			MaxUpload: getEnvAsInt("SERVER_MAX_UPLOAD_MB", 32),
		},
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", ""),
			Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
		},
		Oracle: OracleConfig{
			MaxRetries: getEnvAsInt("ORACLE_MAX_RETRIES", 2),
			Backoff:    getEnvAsDuration("ORACLE_BACKOFF", 2*time.Second),
			ChunkSize:  getEnvAsInt("ORACLE_CHUNK_SIZE", 12000),
		},
		Sheet: SheetConfig{
			Workbook:   getEnv("WORKBOOK_PATH", ""),
			BatchSize:  getEnvAsInt("SHEET_BATCH_SIZE", 500),
			BatchPause: getEnvAsDuration("SHEET_BATCH_PAUSE", time.Second),
		},
		ProfilesPath: getEnv("PROFILES_PATH", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Oracle.MaxRetries < 0 {
		return nil, errors.New("ORACLE_MAX_RETRIES must not be negative")
	}
	if cfg.Sheet.BatchSize <= 0 {
		return nil, errors.New("SHEET_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// Addr returns the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// profilesFile is the YAML layout of the profile overrides file:
//
//	profiles:
//	  fees:
//	    noise_terms: [...]
type profilesFile struct {
	Profiles map[string]models.Profile `yaml:"profiles"`
}

// LoadProfiles reads report profile overrides from a YAML file. An empty
// path yields no overrides.
func LoadProfiles(path string) (map[models.ReportType]models.Profile, error) {
	out := make(map[models.ReportType]models.Profile)
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles %q: %w", path, err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes profile overrides keyed by report type.
func ParseProfiles(data []byte) (map[models.ReportType]models.Profile, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid profiles file: %w", err)
	}
	out := make(map[models.ReportType]models.Profile, len(f.Profiles))
	for name, p := range f.Profiles {
		report := models.ReportType(strings.ToLower(strings.TrimSpace(name)))
		if !known(report) {
			return nil, fmt.Errorf("invalid profiles file: unknown report %q", name)
		}
		out[report] = p
	}
	return out, nil
}

func known(report models.ReportType) bool {
	for _, r := range models.ReportTypes {
		if r == report {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
