package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/matcha-check/internal/matcha"
)

// Config is the runtime configuration of the service.
type Config struct {
	HTTPAddr     string
	GRPCAddr     string
	DatabaseDSN  string
	RedisAddr    string
	AnalyzerAddr string
	JWTSecret    string
	JWTAudience  string
	ImageDir     string
	ImageBaseURL string
	LogLevel     string
	Analyzer     matcha.Config
}

// Load reads the environment, optionally seeded from a .env file. Analyzer
// tuning starts from matcha.DefaultConfig, is overlaid with the YAML file named
// by ANALYZER_CONFIG, then with the MATCHA_* variables.
func Load() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     os.Getenv("GRPC_ADDR"),
		DatabaseDSN:  getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=matcha port=5432 sslmode=disable"),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		AnalyzerAddr: os.Getenv("ANALYZER_ADDR"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:  os.Getenv("JWT_AUDIENCE"),
		ImageDir:     getEnv("IMAGE_DIR", "data/images"),
		ImageBaseURL: strings.TrimRight(getEnv("IMAGE_BASE_URL", "/images"), "/"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Analyzer:     matcha.DefaultConfig(),
	}

	if path := os.Getenv("ANALYZER_CONFIG"); path != "" {
		if err := loadAnalyzerFile(path, &cfg.Analyzer); err != nil {
			return nil, err
		}
	}
	if err := applyAnalyzerEnv(&cfg.Analyzer); err != nil {
		return nil, err
	}
	if err := cfg.Analyzer.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer config: %w", err)
	}

	return cfg, nil
}

func loadAnalyzerFile(path string, analyzer *matcha.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read analyzer config: %w", err)
	}
	if err := yaml.Unmarshal(data, analyzer); err != nil {
		return fmt.Errorf("parse analyzer config %s: %w", path, err)
	}
	return nil
}

func applyAnalyzerEnv(analyzer *matcha.Config) error {
	if v := os.Getenv("MATCHA_MIN_PIXELS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MATCHA_MIN_PIXELS: %w", err)
		}
		analyzer.MinPixels = n
	}
	if v := os.Getenv("MATCHA_MIN_GREEN_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MATCHA_MIN_GREEN_RATIO: %w", err)
		}
		analyzer.MinGreenRatio = f
	}
	if v := os.Getenv("MATCHA_SAMPLER"); v != "" {
		analyzer.Sampler.Kind = v
	}
	if v := os.Getenv("MATCHA_SCORING"); v != "" {
		analyzer.Scoring.Kind = v
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
