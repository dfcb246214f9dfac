package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Workspace WorkspaceConfig
	Limits    LimitsConfig
	Text      TextConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Packer    PackerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Web       WebConfig
	Prices    PricesConfig
}

type WorkspaceConfig struct {
	Dir string // root for per-user job trees, defaults to ./workspace
}

// JobRoot returns the directory holding a single job's files.
func (c *WorkspaceConfig) JobRoot(userID, jobID string) string {
	return filepath.Join(c.Dir, userID, jobID)
}

// WatermarkPath returns where the overlay image name of userID is stored.
func (c *WorkspaceConfig) WatermarkPath(userID, name string) string {
	return filepath.Join(c.Dir, userID, "watermark", filepath.Base(name))
}

type LimitsConfig struct {
	MaxPhotos          int
	MaxN               int
	MaxM               int
	Workers            int // augmentation workers, defaults to NumCPU
	DuplicateThreshold int
}

type TextConfig struct {
	Provider string // openai, gemini, remote or static
	URL      string // remote text service base URL
}

type OpenAIConfig struct {
	Token string
	Model string
}

type GeminiConfig struct {
	APIKey string
}

type PackerConfig struct {
	URL string // remote packer service base URL, empty disables the remote packer
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty selects the local SQLite store
	SQLitePath   string // SQLite file path used when URL is empty
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string
	Port           int
	SessionSecret  string   // signs session cookies, random per process when empty
	AllowedOrigins []string // CORS origins besides localhost
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envString returns the env var value or the default when unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	workspace := envString("WORKSPACE_DIR", "./workspace")

	return &Config{
		Workspace: WorkspaceConfig{
			Dir: workspace,
		},
		Limits: LimitsConfig{
			MaxPhotos:          envInt("MAX_PHOTOS", constants.DefaultMaxPhotos),
			MaxN:               envInt("MAX_N", constants.DefaultMaxN),
			MaxM:               envInt("MAX_M", constants.DefaultMaxM),
			Workers:            envInt("WORKERS", runtime.NumCPU()),
			DuplicateThreshold: envInt("DEDUP_THRESHOLD", constants.DefaultDuplicateThreshold),
		},
		Text: TextConfig{
			Provider: envString("TEXT_PROVIDER", constants.ProviderOpenAI),
			URL:      os.Getenv("TEXTGEN_URL"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
			Model: envString("OPENAI_MODEL", "gpt-4.1-mini"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Packer: PackerConfig{
			URL: os.Getenv("PACKER_URL"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			SQLitePath:   envString("SQLITE_PATH", filepath.Join(workspace, "profiles.db")),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
