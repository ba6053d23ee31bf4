package usecase

import "context"

// MetricsSummary represents aggregated rating insights.
type MetricsSummary struct {
	TotalRatings     int64   `json:"total_ratings"`
	CupFoundRatings  int64   `json:"cup_found_ratings"`
	CupFoundRate     float64 `json:"cup_found_rate"`
	AverageAIScore   float64 `json:"average_ai_score"`
	AverageUserScore float64 `json:"average_user_score"`
}

// GetMetricsSummary aggregates rating metrics from persisted records.
func (uc *RatingUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRatings:     aggregation.TotalCount,
		CupFoundRatings:  aggregation.CupFoundCount,
		AverageAIScore:   aggregation.AverageAIScore,
		AverageUserScore: aggregation.AverageUserScore,
	}

	if aggregation.TotalCount > 0 {
		summary.CupFoundRate = float64(aggregation.CupFoundCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
