package matcha

import (
	"fmt"
	"math"
)

// Scorer maps the statistics of a found cup to a color score.
type Scorer interface {
	Score(stats Stats) float64
	MaxScore() float64
}

// NewScorer creates a scorer based on the configured kind.
func NewScorer(cfg ScoringConfig, palette []ReferenceColor) (Scorer, error) {
	switch cfg.Kind {
	case ScoringBlend, "":
		return BlendScorer{cfg: cfg.Blend}, nil
	case ScoringPerceptual:
		return NewPerceptualScorer(cfg.Perceptual, palette), nil
	default:
		return nil, fmt.Errorf("unknown scoring kind: %s", cfg.Kind)
	}
}

// DominanceTier awards Bonus when the mean green beats red and blue by the margins.
type DominanceTier struct {
	RedMargin  float64 `yaml:"red_margin"`
	BlueMargin float64 `yaml:"blue_margin"`
	Bonus      float64 `yaml:"bonus"`
}

// BlendConfig weights the components of the 0-10 blend score.
type BlendConfig struct {
	RatioWeight float64         `yaml:"ratio_weight"`
	RatioCap    float64         `yaml:"ratio_cap"`
	CloseWeight float64         `yaml:"close_weight"`
	CloseCap    float64         `yaml:"close_cap"`
	Dominance   []DominanceTier `yaml:"dominance"`
	BandMin     float64         `yaml:"band_min"`
	BandMax     float64         `yaml:"band_max"`
	BandBonus   float64         `yaml:"band_bonus"`
}

// DefaultBlendConfig returns the blend weights used by DefaultConfig.
func DefaultBlendConfig() BlendConfig {
	return BlendConfig{
		RatioWeight: 10,
		RatioCap:    4,
		CloseWeight: 15,
		CloseCap:    3,
		Dominance: []DominanceTier{
			{RedMargin: 20, BlueMargin: 30, Bonus: 2},
			{RedMargin: 10, BlueMargin: 15, Bonus: 1},
		},
		BandMin:   130,
		BandMax:   180,
		BandBonus: 1,
	}
}

const (
	blendMaxScore = 10
	blendMinFound = 1
)

// BlendScorer sums a ratio score, a closeness score, a green dominance bonus and
// a brightness band bonus. A found cup never scores below 1.
type BlendScorer struct {
	cfg BlendConfig
}

// MaxScore implements Scorer.
func (BlendScorer) MaxScore() float64 { return blendMaxScore }

// Score implements Scorer.
func (s BlendScorer) Score(stats Stats) float64 {
	avgR, avgG, avgB := stats.Mean()

	total := math.Min(s.cfg.RatioCap, stats.MatchaRatio()*s.cfg.RatioWeight)
	total += math.Min(s.cfg.CloseCap, stats.CloseRatio()*s.cfg.CloseWeight)

	// tiers are ordered strongest first
	for _, tier := range s.cfg.Dominance {
		if avgG > avgR+tier.RedMargin && avgG > avgB+tier.BlueMargin {
			total += tier.Bonus
			break
		}
	}
	if avgG >= s.cfg.BandMin && avgG <= s.cfg.BandMax {
		total += s.cfg.BandBonus
	}

	return clamp(math.Round(total), blendMinFound, blendMaxScore)
}

// CurvePoint is one knot of the distance-to-score curve.
type CurvePoint struct {
	Distance float64 `yaml:"distance"`
	Score    float64 `yaml:"score"`
}

// PerceptualConfig weights the HSV distance and shapes the score curve.
type PerceptualConfig struct {
	HueWeight        float64      `yaml:"hue_weight"`
	SaturationWeight float64      `yaml:"saturation_weight"`
	ValueWeight      float64      `yaml:"value_weight"`
	Curve            []CurvePoint `yaml:"curve"`
}

// DefaultPerceptualConfig returns a curve that stays at 5 for near matches and
// reaches 0 at distance 30.
func DefaultPerceptualConfig() PerceptualConfig {
	return PerceptualConfig{
		HueWeight:        1,
		SaturationWeight: 0.5,
		ValueWeight:      0.5,
		Curve: []CurvePoint{
			{Distance: 0, Score: 5},
			{Distance: 4, Score: 5},
			{Distance: 10, Score: 4},
			{Distance: 20, Score: 2},
			{Distance: 30, Score: 0},
		},
	}
}

const perceptualMaxScore = 5

// PerceptualScorer scores the mean color by its weighted HSV distance to the
// closest reference color, in half points on a 0-5 scale.
type PerceptualScorer struct {
	cfg  PerceptualConfig
	refs []hsvColor
}

// NewPerceptualScorer precomputes the HSV form of the palette.
func NewPerceptualScorer(cfg PerceptualConfig, palette []ReferenceColor) PerceptualScorer {
	refs := make([]hsvColor, 0, len(palette))
	for _, ref := range palette {
		refs = append(refs, rgbToHSV(float64(ref.R), float64(ref.G), float64(ref.B)))
	}
	return PerceptualScorer{cfg: cfg, refs: refs}
}

// MaxScore implements Scorer.
func (PerceptualScorer) MaxScore() float64 { return perceptualMaxScore }

// Score implements Scorer.
func (s PerceptualScorer) Score(stats Stats) float64 {
	avg := rgbToHSV(stats.Mean())
	best := math.Inf(1)
	for _, ref := range s.refs {
		if d := s.distance(avg, ref); d < best {
			best = d
		}
	}
	score := interpolate(s.cfg.Curve, best)
	return clamp(math.Round(score*2)/2, 0, perceptualMaxScore)
}

func (s PerceptualScorer) distance(a, b hsvColor) float64 {
	dh := math.Abs(a.H - b.H)
	if dh > 180 {
		dh = 360 - dh
	}
	return s.cfg.HueWeight*dh +
		s.cfg.SaturationWeight*math.Abs(a.S-b.S)*100 +
		s.cfg.ValueWeight*math.Abs(a.V-b.V)*100
}

// interpolate evaluates a piecewise-linear curve sorted by distance. Distances
// beyond the last knot take the last score.
func interpolate(curve []CurvePoint, d float64) float64 {
	if len(curve) == 0 || math.IsInf(d, 1) {
		return 0
	}
	if d <= curve[0].Distance {
		return curve[0].Score
	}
	for i := 1; i < len(curve); i++ {
		lo, hi := curve[i-1], curve[i]
		if d <= hi.Distance {
			span := hi.Distance - lo.Distance
			if span <= 0 {
				return hi.Score
			}
			t := (d - lo.Distance) / span
			return lo.Score + t*(hi.Score-lo.Score)
		}
	}
	return curve[len(curve)-1].Score
}

// hsvColor represents a color in HSV space.
type hsvColor struct {
	H float64 // degrees [0, 360)
	S float64 // [0, 1]
	V float64 // [0, 1]
}

// rgbToHSV converts channel values in [0,255] to HSV.
func rgbToHSV(r, g, b float64) hsvColor {
	rf, gf, bf := r/255, g/255, b/255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}
	return hsvColor{H: h, S: s, V: maxC}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
