package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/matcha-check/internal/matcha"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "GRPC_ADDR", "ANALYZER_ADDR", "ANALYZER_CONFIG", "IMAGE_BASE_URL", "MATCHA_SAMPLER", "MATCHA_SCORING", "MATCHA_MIN_PIXELS", "MATCHA_MIN_GREEN_RATIO"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.GRPCAddr)
	assert.Empty(t, cfg.AnalyzerAddr)
	assert.Equal(t, "/images", cfg.ImageBaseURL)
	assert.Equal(t, matcha.DefaultConfig(), cfg.Analyzer)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ANALYZER_CONFIG", "")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("GRPC_ADDR", ":50051")
	t.Setenv("IMAGE_BASE_URL", "https://cdn.example.com/matcha/")
	t.Setenv("MATCHA_MIN_PIXELS", "250")
	t.Setenv("MATCHA_MIN_GREEN_RATIO", "0.2")
	t.Setenv("MATCHA_SAMPLER", matcha.SamplerDisc)
	t.Setenv("MATCHA_SCORING", matcha.ScoringPerceptual)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, "https://cdn.example.com/matcha", cfg.ImageBaseURL)
	assert.Equal(t, 250, cfg.Analyzer.MinPixels)
	assert.Equal(t, 0.2, cfg.Analyzer.MinGreenRatio)
	assert.Equal(t, matcha.SamplerDisc, cfg.Analyzer.Sampler.Kind)
	assert.Equal(t, matcha.ScoringPerceptual, cfg.Analyzer.Scoring.Kind)
}

func TestLoadAnalyzerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	content := `
sampler:
  kind: full
min_pixels: 42
classifier:
  rule:
    min_green: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("ANALYZER_CONFIG", path)
	t.Setenv("MATCHA_SAMPLER", "")
	t.Setenv("MATCHA_MIN_PIXELS", "")
	t.Setenv("MATCHA_MIN_GREEN_RATIO", "")
	t.Setenv("MATCHA_SCORING", matcha.ScoringPerceptual)

	cfg, err := Load()
	require.NoError(t, err)

	defaults := matcha.DefaultConfig()
	assert.Equal(t, matcha.SamplerFull, cfg.Analyzer.Sampler.Kind)
	assert.Equal(t, 42, cfg.Analyzer.MinPixels)
	assert.Equal(t, uint8(100), cfg.Analyzer.Classifier.Rule.MinGreen)
	assert.Equal(t, defaults.Classifier.Rule.MaxGreen, cfg.Analyzer.Classifier.Rule.MaxGreen)
	assert.Equal(t, defaults.Classifier.Palette, cfg.Analyzer.Classifier.Palette)
	// env wins over the file
	assert.Equal(t, matcha.ScoringPerceptual, cfg.Analyzer.Scoring.Kind)
}

func TestLoadRejectsInvalidAnalyzerSettings(t *testing.T) {
	t.Setenv("ANALYZER_CONFIG", "")
	t.Setenv("MATCHA_SAMPLER", "")
	t.Setenv("MATCHA_SCORING", "")
	t.Setenv("MATCHA_MIN_GREEN_RATIO", "")

	t.Setenv("MATCHA_MIN_PIXELS", "lots")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("MATCHA_MIN_PIXELS", "0")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("MATCHA_MIN_PIXELS", "")
	t.Setenv("MATCHA_MIN_GREEN_RATIO", "NaN")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("MATCHA_MIN_GREEN_RATIO", "")
	t.Setenv("ANALYZER_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	require.Error(t, err)
}
