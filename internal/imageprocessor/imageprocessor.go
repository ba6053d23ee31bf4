package imageprocessor

import (
	"context"

	"github.com/example/matcha-check/internal/matcha"
)

// Result contains the matcha verdict for one image.
type Result struct {
	CupFound   bool    `json:"cup_found"`
	ColorScore float64 `json:"color_score"`
	MaxScore   float64 `json:"max_score"`
	AvgColor   string  `json:"avg_color"`
}

// FromMatcha converts the analyzer verdict.
func FromMatcha(r matcha.Result) *Result {
	return &Result{
		CupFound:   r.CupFound,
		ColorScore: r.ColorScore,
		MaxScore:   r.MaxScore,
		AvgColor:   r.AvgColor,
	}
}

// Client exposes the analysis used by the rating flow. Implementations run it
// in-process or call a remote analyzer.
type Client interface {
	Analyze(ctx context.Context, imageBytes []byte) (*Result, error)
}
