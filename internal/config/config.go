// Package config reads the deployment constants from the environment. It is
// only called from the binaries under cmd/.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"content-transformer/internal/domain"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"

	defaultModelID     = "amazon.nova-lite-v1:0"
	defaultOwnerClaim  = "sub"
	defaultListenAddr  = ":8080"
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
	defaultTopP        = 0.9
)

// Config covers both deployment shapes. Local-only fields are empty in Lambda.
type Config struct {
	HistoryTable  string
	Provider      string
	ModelID       string
	Params        domain.GenerationParams
	MaxPromptLen  int
	OwnerClaim    string
	ParamPrefix   string
	OpenAIBaseURL string
	HistoryTTL    time.Duration
	LogLevel      slog.Level

	ListenAddr   string
	DatabasePath string
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
}

// Load reads the Lambda configuration. HISTORY_TABLE is required.
func Load() (Config, error) {
	cfg, err := loadCommon()
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryTable = envString("HISTORY_TABLE", "")
	if cfg.HistoryTable == "" {
		return Config{}, errors.New("config: HISTORY_TABLE is required")
	}
	return cfg, nil
}

// LoadLocal reads the local server configuration. Without HISTORY_TABLE the
// server keeps history in SQLite at DATABASE_PATH.
func LoadLocal() (Config, error) {
	cfg, err := loadCommon()
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryTable = envString("HISTORY_TABLE", "")
	cfg.ListenAddr = envString("LISTEN_ADDR", defaultListenAddr)
	cfg.DatabasePath = envString("DATABASE_PATH", defaultDatabasePath())
	cfg.JWTSecret = envString("JWT_SECRET", "")
	cfg.JWTIssuer = envString("JWT_ISSUER", "")
	cfg.JWTAudience = envString("JWT_AUDIENCE", "")
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("config: JWT_SECRET is required")
	}
	return cfg, nil
}

func loadCommon() (Config, error) {
	cfg := Config{
		Provider:     strings.ToLower(envString("MODEL_PROVIDER", ProviderBedrock)),
		ModelID:      envString("MODEL_ID", defaultModelID),
		MaxPromptLen: envInt("MAX_PROMPT_LENGTH", 0),
		OwnerClaim:   envString("OWNER_CLAIM", defaultOwnerClaim),
		ParamPrefix:  envString("PARAM_PREFIX", ""),
		Params: domain.GenerationParams{
			MaxTokens:   envInt("MODEL_MAX_TOKENS", defaultMaxTokens),
			Temperature: envFloat("MODEL_TEMPERATURE", defaultTemperature),
			TopP:        envFloat("MODEL_TOP_P", defaultTopP),
		},
		OpenAIBaseURL: envString("OPENAI_BASE_URL", ""),
		LogLevel:      parseLevel(envString("LOG_LEVEL", "info")),
	}
	if days := envInt("HISTORY_TTL_DAYS", 0); days > 0 {
		cfg.HistoryTTL = time.Duration(days) * 24 * time.Hour
	}

	switch cfg.Provider {
	case ProviderBedrock:
	case ProviderOpenAI:
		if cfg.ParamPrefix == "" {
			return Config{}, errors.New("config: PARAM_PREFIX is required for the openai provider")
		}
	default:
		return Config{}, fmt.Errorf("config: unsupported MODEL_PROVIDER %q", cfg.Provider)
	}
	return cfg, nil
}

// LoadDotEnv loads the first .env file found in the working directory or
// under the user config directory. Existing variables win.
func LoadDotEnv() (string, error) {
	for _, path := range dotEnvPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", fmt.Errorf("config: load %s: %w", path, err)
		}
		return path, nil
	}
	return "", nil
}

func dotEnvPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "content-transformer", ".env"))
	}
	return paths
}

func defaultDatabasePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "content-transformer", "history.db")
	}
	return "history.db"
}

// NewLogger returns a JSON logger for Lambda or a text logger for terminals.
func NewLogger(level slog.Level, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}
