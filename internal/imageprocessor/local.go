package imageprocessor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/matcha-check/internal/logging"
	"github.com/example/matcha-check/internal/matcha"
)

// LocalClient runs the analyzer in-process.
type LocalClient struct {
	analyzer *matcha.Analyzer
	logger   *zap.Logger
}

// NewLocalClient wraps analyzer.
func NewLocalClient(analyzer *matcha.Analyzer, logger *zap.Logger) *LocalClient {
	return &LocalClient{analyzer: analyzer, logger: logger.Named("local_analyzer")}
}

// Analyze implements Client. The context is only checked before the scan
// starts; a started scan always runs to completion.
func (c *LocalClient) Analyze(ctx context.Context, imageBytes []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, logging.NewOperationError("imageprocessor.analyze", "", err)
	}

	started := time.Now()
	res, err := c.analyzer.AnalyzeBytes(imageBytes)
	if err != nil {
		return nil, logging.NewOperationError("imageprocessor.analyze", "", err)
	}

	c.logger.Debug("matcha analysis finished",
		zap.Bool("cup_found", res.CupFound),
		zap.Float64("color_score", res.ColorScore),
		zap.String("avg_color", res.AvgColor),
		zap.Int("bytes", len(imageBytes)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return FromMatcha(res), nil
}
