package matcha

import (
	"fmt"
	"math"
)

// Region reports whether the pixel at (x, y), relative to the image origin, is
// part of the sampled cup interior.
type Region func(x, y int) bool

// Sampler derives a Region from image dimensions.
type Sampler interface {
	Region(width, height int) Region
}

// NewSampler creates a sampler based on the configured kind.
func NewSampler(cfg SamplerConfig) (Sampler, error) {
	switch cfg.Kind {
	case SamplerSilhouette, "":
		return SilhouetteSampler{
			CupWidth:      cfg.CupWidth,
			CupHeight:     cfg.CupHeight,
			TaperFactor:   cfg.TaperFactor,
			VerticalLimit: cfg.VerticalLimit,
		}, nil
	case SamplerDisc:
		if cfg.DiscFraction <= 0 {
			return nil, fmt.Errorf("disc sampler needs a positive fraction, got %v", cfg.DiscFraction)
		}
		return DiscSampler{Fraction: cfg.DiscFraction}, nil
	case SamplerFull:
		return FullFrameSampler{}, nil
	default:
		return nil, fmt.Errorf("unknown sampler kind: %s", cfg.Kind)
	}
}

// DiscSampler keeps pixels within min(W,H)*Fraction of the image center.
type DiscSampler struct {
	Fraction float64
}

func (s DiscSampler) Region(width, height int) Region {
	cx, cy := float64(width)/2, float64(height)/2
	radius := math.Min(float64(width), float64(height)) * s.Fraction
	r2 := radius * radius
	return func(x, y int) bool {
		dx, dy := float64(x)-cx, float64(y)-cy
		return dx*dx+dy*dy <= r2
	}
}

// SilhouetteSampler approximates a cup seen from the front: an ellipse that is
// wider at the rim and narrows towards the base.
type SilhouetteSampler struct {
	CupWidth      float64 // horizontal semi-axis as a fraction of width
	CupHeight     float64 // vertical semi-axis as a fraction of height
	TaperFactor   float64 // how much narrower the base is than the rim
	VerticalLimit float64 // cut-off for |relY|, trims rim and base
}

func (s SilhouetteSampler) Region(width, height int) Region {
	cx, cy := float64(width)/2, float64(height)/2
	rx, ry := float64(width)*s.CupWidth, float64(height)*s.CupHeight
	if rx <= 0 || ry <= 0 {
		return func(int, int) bool { return false }
	}
	return func(x, y int) bool {
		relX := (float64(x) - cx) / rx
		relY := (float64(y) - cy) / ry
		if relY <= -s.VerticalLimit || relY >= s.VerticalLimit {
			return false
		}
		taper := 1 - relY*s.TaperFactor
		if taper <= 0 {
			return false
		}
		nx := relX / taper
		return nx*nx+relY*relY <= 1
	}
}

// FullFrameSampler accepts every pixel; only the alpha cutoff applies.
type FullFrameSampler struct{}

func (FullFrameSampler) Region(int, int) Region {
	return func(int, int) bool { return true }
}
