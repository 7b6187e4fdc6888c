package usecase

import "context"

// MetricsSummary represents aggregated processing insights.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageDurationMs  float64 `json:"average_duration_ms"`
	RemoteRemovals     int64   `json:"remote_removals"`
	LocalRemovals      int64   `json:"local_removals"`
}

// GetMetricsSummary aggregates processing metrics from persisted logs.
func (uc *TryOnUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		SuccessfulRequests: aggregation.SuccessCount,
		AverageDurationMs:  aggregation.AverageDurationMs,
		RemoteRemovals:     aggregation.RemoteRemovals,
		LocalRemovals:      aggregation.LocalRemovals,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
