// Package matcha decides whether a photo shows a cup of matcha and scores how
// vivid its green is.
//
// The analysis is a single raster scan over a sample region of the image. A
// Sampler picks the region, a PixelClassifier counts matcha-like pixels, and a
// Scorer turns the aggregate statistics into a score. All three are selected by
// Config, so calibrations can be swapped without touching the scan itself.
//
// The default calibration uses the cup silhouette sampler and the 0-10 blend
// score. Analyzer holds no mutable state and is safe for concurrent use.
package matcha

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	// webp uploads from phones
	_ "golang.org/x/image/webp"
)

// NeutralColor is reported when no pixel could be sampled.
const NeutralColor = "#888888"

var (
	// ErrEmptyImage is returned for nil, zero-sized or empty inputs. It is the
	// only error Analyze reports; a missing cup is a regular Result.
	ErrEmptyImage = errors.New("empty image")
	// ErrUndecodable wraps decoder failures returned by Decode.
	ErrUndecodable = errors.New("undecodable image")
)

// Result is the verdict of one analysis.
type Result struct {
	CupFound   bool    `json:"cupFound"`
	ColorScore float64 `json:"colorScore"`
	MaxScore   float64 `json:"maxScore"`
	AvgColor   string  `json:"avgColor"`
}

// Analyzer runs the matcha analysis with a fixed configuration.
type Analyzer struct {
	cfg        Config
	sampler    Sampler
	classifier PixelClassifier
	scorer     Scorer
}

// New builds an Analyzer from cfg.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sampler, err := NewSampler(cfg.Sampler)
	if err != nil {
		return nil, err
	}
	scorer, err := NewScorer(cfg.Scoring, cfg.Classifier.Palette)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		cfg:        cfg,
		sampler:    sampler,
		classifier: cfg.Classifier.Rule,
		scorer:     scorer,
	}, nil
}

// MaxScore returns the upper bound of the configured score scale.
func (a *Analyzer) MaxScore() float64 {
	return a.scorer.MaxScore()
}

// FailureResult is returned for inputs that could not be decoded.
func (a *Analyzer) FailureResult() Result {
	return Result{MaxScore: a.scorer.MaxScore(), AvgColor: NeutralColor}
}

// AnalyzeBytes decodes data and analyzes it. Decoder failures resolve to
// FailureResult with a nil error; only an empty buffer is an error.
func (a *Analyzer) AnalyzeBytes(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyImage
	}
	img, err := Decode(data, a.cfg.MaxDimension)
	if err != nil {
		return a.FailureResult(), nil
	}
	res, err := a.Analyze(img)
	if err != nil {
		return a.FailureResult(), nil
	}
	return res, nil
}

// Analyze scans img and produces the verdict.
func (a *Analyzer) Analyze(img image.Image) (Result, error) {
	if img == nil || img.Bounds().Empty() {
		return Result{}, ErrEmptyImage
	}
	return a.Evaluate(a.Sample(img)), nil
}

// Evaluate turns sampled statistics into a Result.
func (a *Analyzer) Evaluate(stats Stats) Result {
	res := Result{MaxScore: a.scorer.MaxScore(), AvgColor: NeutralColor}
	if stats.Pixels == 0 {
		return res
	}
	res.AvgColor = hexColor(stats.Mean())
	res.CupFound = stats.Pixels >= a.cfg.MinPixels && stats.MatchaRatio() >= a.cfg.MinGreenRatio
	if res.CupFound {
		res.ColorScore = clamp(a.scorer.Score(stats), 0, res.MaxScore)
	}
	return res
}

// Sample aggregates the statistics of the sample region. Large images are
// split into row ranges scanned concurrently; each range has its own Stats.
func (a *Analyzer) Sample(img image.Image) Stats {
	src := toNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return Stats{}
	}
	inside := a.sampler.Region(w, h)

	workers := min(a.cfg.Workers, h)
	if workers <= 1 || w*h < a.cfg.ParallelThreshold {
		return a.scanRows(src, inside, 0, h)
	}

	partials := make([]Stats, workers)
	step := (h + workers - 1) / workers
	var g errgroup.Group
	for i := range workers {
		y0, y1 := i*step, min((i+1)*step, h)
		if y0 >= y1 {
			continue
		}
		g.Go(func() error {
			partials[i] = a.scanRows(src, inside, y0, y1)
			return nil
		})
	}
	_ = g.Wait()

	var total Stats
	for _, p := range partials {
		total.Merge(p)
	}
	return total
}

func (a *Analyzer) scanRows(src *image.NRGBA, inside Region, y0, y1 int) Stats {
	var s Stats
	w := src.Rect.Dx()
	cutoff := a.cfg.Sampler.AlphaCutoff
	palette := a.cfg.Classifier.Palette
	closeDistance := a.cfg.Classifier.CloseDistance

	for y := y0; y < y1; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			if !inside(x, y) {
				continue
			}
			px := row[x*4 : x*4+4 : x*4+4]
			if px[3] < cutoff {
				continue
			}
			r, g, b := px[0], px[1], px[2]
			s.Pixels++
			s.SumR += uint64(r)
			s.SumG += uint64(g)
			s.SumB += uint64(b)
			if !a.classifier.IsMatcha(r, g, b) {
				continue
			}
			s.MatchaCount++
			if nearestDistance(r, g, b, palette) < closeDistance {
				s.CloseCount++
			}
		}
	}
	return s
}

// Decode reads an image with EXIF orientation applied and shrinks it so that
// neither side exceeds maxDimension (0 keeps the original size).
func Decode(data []byte, maxDimension int) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b := img.Bounds()
	if maxDimension > 0 && (b.Dx() > maxDimension || b.Dy() > maxDimension) {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Box)
	}
	return img, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

func hexColor(r, g, b float64) string {
	return fmt.Sprintf("#%02x%02x%02x", channel(r), channel(g), channel(b))
}

func channel(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 255)))
}
