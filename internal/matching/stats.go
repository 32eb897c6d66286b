package matching

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// statsTimeout bounds each aggregation half independently.
const statsTimeout = 5 * time.Second

// JobStatsSource aggregates historical job data for one provider.
type JobStatsSource interface {
	AggregateJobStats(ctx context.Context, providerID string) (model.JobStats, error)
}

// RatingStatsSource aggregates rating data for one provider.
type RatingStatsSource interface {
	AggregateRatingStats(ctx context.Context, providerID string) (model.RatingStats, error)
}

// Aggregator computes derived provider statistics on demand. The two halves
// (job-based, rating-based) run concurrently and fail independently: a failed
// or timed-out half degrades to zero values and is logged, never raised.
type Aggregator struct {
	jobs    JobStatsSource
	ratings RatingStatsSource
	log     *slog.Logger
}

// NewAggregator constructs an Aggregator.
func NewAggregator(jobs JobStatsSource, ratings RatingStatsSource, log *slog.Logger) *Aggregator {
	return &Aggregator{jobs: jobs, ratings: ratings, log: log}
}

// GetProviderStatistics returns a complete, default-filled statistics record.
// It never returns an error.
func (a *Aggregator) GetProviderStatistics(ctx context.Context, providerID string) *model.ProviderStats {
	var (
		wg          sync.WaitGroup
		jobStats    model.JobStats
		ratingStats model.RatingStats
	)
	ratingStats.Distribution = map[int]int{}

	wg.Add(2)
	go func() {
		defer wg.Done()
		jctx, cancel := context.WithTimeout(ctx, statsTimeout)
		defer cancel()
		js, err := a.jobs.AggregateJobStats(jctx, providerID)
		if err != nil {
			a.log.Warn("job stats aggregation failed, using defaults",
				"providerId", providerID, "err", err)
			return
		}
		jobStats = js
	}()
	go func() {
		defer wg.Done()
		rctx, cancel := context.WithTimeout(ctx, statsTimeout)
		defer cancel()
		rs, err := a.ratings.AggregateRatingStats(rctx, providerID)
		if err != nil {
			a.log.Warn("rating stats aggregation failed, using defaults",
				"providerId", providerID, "err", err)
			return
		}
		if rs.Distribution == nil {
			rs.Distribution = map[int]int{}
		}
		ratingStats = rs
	}()
	wg.Wait()

	return &model.ProviderStats{
		JobStats:        jobStats,
		RatingStats:     ratingStats,
		ExperienceLevel: model.DeriveExperienceLevel(jobStats.CompletedJobs),
		Reliability:     jobStats.CompletionRate,
	}
}
