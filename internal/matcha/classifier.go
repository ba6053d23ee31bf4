package matcha

import (
	"fmt"
	"math"
)

// PixelClassifier decides whether a single opaque pixel looks like matcha.
type PixelClassifier interface {
	IsMatcha(r, g, b uint8) bool
}

// ChannelRule requires a saturated mid-to-bright green: green must beat red and
// blue by fixed margins and sit inside a brightness band.
type ChannelRule struct {
	MinGreen   uint8 `yaml:"min_green"`
	MaxGreen   uint8 `yaml:"max_green"`
	MaxRed     uint8 `yaml:"max_red"`
	MaxBlue    uint8 `yaml:"max_blue"`
	RedMargin  int   `yaml:"red_margin"`
	BlueMargin int   `yaml:"blue_margin"`
}

// IsMatcha implements PixelClassifier.
func (c ChannelRule) IsMatcha(r, g, b uint8) bool {
	if g < c.MinGreen || g > c.MaxGreen {
		return false
	}
	if r > c.MaxRed || b > c.MaxBlue {
		return false
	}
	gi := int(g)
	return gi >= int(r)+c.RedMargin && gi >= int(b)+c.BlueMargin
}

// ReferenceColor is one point of the ideal matcha palette.
type ReferenceColor struct {
	Name string `yaml:"name"`
	R    uint8  `yaml:"r"`
	G    uint8  `yaml:"g"`
	B    uint8  `yaml:"b"`
}

// Hex formats the color as #rrggbb.
func (c ReferenceColor) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// DefaultPalette returns the reference matcha colors.
func DefaultPalette() []ReferenceColor {
	return []ReferenceColor{
		{Name: "Bright ceremonial", R: 123, G: 175, B: 92},
		{Name: "Creamy latte", R: 163, G: 197, B: 133},
		{Name: "Earthy mid-tone", R: 143, G: 178, B: 107},
		{Name: "Vibrant whisked", R: 118, G: 166, B: 70},
	}
}

// nearestDistance returns the smallest Euclidean RGB distance to the palette.
func nearestDistance(r, g, b uint8, palette []ReferenceColor) float64 {
	best := math.Inf(1)
	for _, ref := range palette {
		dr := float64(r) - float64(ref.R)
		dg := float64(g) - float64(ref.G)
		db := float64(b) - float64(ref.B)
		if d := math.Sqrt(dr*dr + dg*dg + db*db); d < best {
			best = d
		}
	}
	return best
}

// Stats aggregates the sampled pixels of one image. Counters are integers so
// partial results from parallel scans merge exactly.
type Stats struct {
	Pixels      int
	SumR        uint64
	SumG        uint64
	SumB        uint64
	MatchaCount int
	CloseCount  int
}

// Merge adds the counters of other into s.
func (s *Stats) Merge(other Stats) {
	s.Pixels += other.Pixels
	s.SumR += other.SumR
	s.SumG += other.SumG
	s.SumB += other.SumB
	s.MatchaCount += other.MatchaCount
	s.CloseCount += other.CloseCount
}

// Mean returns the average channel values, or zeros when nothing was sampled.
func (s Stats) Mean() (r, g, b float64) {
	if s.Pixels == 0 {
		return 0, 0, 0
	}
	n := float64(s.Pixels)
	return float64(s.SumR) / n, float64(s.SumG) / n, float64(s.SumB) / n
}

// MatchaRatio is the share of sampled pixels classified as matcha-like.
func (s Stats) MatchaRatio() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.MatchaCount) / float64(s.Pixels)
}

// CloseRatio is the share of sampled pixels that are matcha-like and near a
// reference color.
func (s Stats) CloseRatio() float64 {
	if s.Pixels == 0 {
		return 0
	}
	return float64(s.CloseCount) / float64(s.Pixels)
}
