package matcha

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero min pixels", func(c *Config) { c.MinPixels = 0 }, true},
		{"negative ratio", func(c *Config) { c.MinGreenRatio = -0.1 }, true},
		{"ratio above one", func(c *Config) { c.MinGreenRatio = 1.5 }, true},
		{"ratio NaN", func(c *Config) { c.MinGreenRatio = math.NaN() }, true},
		{"empty palette", func(c *Config) { c.Classifier.Palette = nil }, true},
		{"negative max dimension", func(c *Config) { c.MaxDimension = -1 }, true},
		{"resizing disabled", func(c *Config) { c.MaxDimension = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				_, newErr := New(cfg)
				require.Error(t, newErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
