package matcha

import (
	"fmt"
	"math"
)

// Sampler kinds accepted by SamplerConfig.Kind.
const (
	SamplerSilhouette = "silhouette"
	SamplerDisc       = "disc"
	SamplerFull       = "full"
)

// Scoring kinds accepted by ScoringConfig.Kind.
const (
	ScoringBlend      = "blend"
	ScoringPerceptual = "perceptual"
)

// Config holds every tunable of the analysis pipeline.
type Config struct {
	Sampler    SamplerConfig    `yaml:"sampler"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Scoring    ScoringConfig    `yaml:"scoring"`

	// MinPixels and MinGreenRatio decide whether a cup was found at all.
	MinPixels     int     `yaml:"min_pixels"`
	MinGreenRatio float64 `yaml:"min_green_ratio"`

	// MaxDimension bounds the longest side of decoded images; 0 disables resizing.
	MaxDimension      int `yaml:"max_dimension"`
	ParallelThreshold int `yaml:"parallel_threshold"`
	Workers           int `yaml:"workers"`
}

// SamplerConfig selects and parametrizes the sample region.
type SamplerConfig struct {
	Kind          string  `yaml:"kind"`
	AlphaCutoff   uint8   `yaml:"alpha_cutoff"`
	DiscFraction  float64 `yaml:"disc_fraction"`
	CupWidth      float64 `yaml:"cup_width"`
	CupHeight     float64 `yaml:"cup_height"`
	TaperFactor   float64 `yaml:"taper_factor"`
	VerticalLimit float64 `yaml:"vertical_limit"`
}

// ClassifierConfig holds the per-pixel matcha rule and the reference palette.
type ClassifierConfig struct {
	Rule          ChannelRule      `yaml:"rule"`
	Palette       []ReferenceColor `yaml:"palette"`
	CloseDistance float64          `yaml:"close_distance"`
}

// ScoringConfig selects the scorer.
type ScoringConfig struct {
	Kind       string           `yaml:"kind"`
	Blend      BlendConfig      `yaml:"blend"`
	Perceptual PerceptualConfig `yaml:"perceptual"`
}

// DefaultConfig returns the calibrated defaults: cup silhouette sampling and the
// 0-10 blend score.
func DefaultConfig() Config {
	return Config{
		Sampler: SamplerConfig{
			Kind:          SamplerSilhouette,
			AlphaCutoff:   200,
			DiscFraction:  0.22,
			CupWidth:      0.35,
			CupHeight:     0.4,
			TaperFactor:   0.3,
			VerticalLimit: 0.8,
		},
		Classifier: ClassifierConfig{
			Rule: ChannelRule{
				MinGreen:   90,
				MaxGreen:   220,
				MaxRed:     200,
				MaxBlue:    170,
				RedMargin:  15,
				BlueMargin: 25,
			},
			Palette:       DefaultPalette(),
			CloseDistance: 50,
		},
		Scoring: ScoringConfig{
			Kind:       ScoringBlend,
			Blend:      DefaultBlendConfig(),
			Perceptual: DefaultPerceptualConfig(),
		},
		MinPixels:         100,
		MinGreenRatio:     0.10,
		MaxDimension:      1024,
		ParallelThreshold: 256 * 256,
		Workers:           4,
	}
}

// Validate reports configuration values that would make analysis meaningless.
func (c Config) Validate() error {
	if c.MinPixels < 1 {
		return fmt.Errorf("min_pixels must be positive, got %d", c.MinPixels)
	}
	if math.IsNaN(c.MinGreenRatio) || c.MinGreenRatio < 0 || c.MinGreenRatio > 1 {
		return fmt.Errorf("min_green_ratio must be within [0,1], got %v", c.MinGreenRatio)
	}
	if len(c.Classifier.Palette) == 0 {
		return fmt.Errorf("classifier palette is empty")
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("max_dimension must not be negative, got %d", c.MaxDimension)
	}
	return nil
}
