package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Le520407/swift-fix-pro-sub002/internal/lifecycle"
	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

const (
	// maxCandidates caps how many providers one matching call may score.
	maxCandidates = 50
	// scoreBatchSize bounds concurrent scoring load on the data store.
	scoreBatchSize = 5
	// workloadTimeout bounds the upcoming-jobs count query per candidate.
	workloadTimeout = 5 * time.Second
	// matchTimeout is the overall deadline for one matching call.
	matchTimeout = 30 * time.Second

	// fallbackScore is the fixed score given to a fallback provider.
	fallbackScore = 50
	// FallbackRationale marks a record produced by the fallback path.
	FallbackRationale = "fallback"

	defaultLimit = 10
)

// ErrNoProviders is returned when even the fallback query yields no active
// provider. This is fatal for the calling operation.
var ErrNoProviders = errors.New("no suitable providers available")

// ProviderStore is the read-only provider boundary of the engine.
type ProviderStore interface {
	// QueryActiveProviders returns up to limit active providers whose
	// categories intersect the acceptable set. Providers without a
	// resolvable owning user are dropped silently. Empty is not an error.
	QueryActiveProviders(ctx context.Context, categories []model.Category, limit int) ([]model.Provider, error)
	// FindAnyActive returns an arbitrary active provider, or ErrNoProviders.
	FindAnyActive(ctx context.Context) (*model.Provider, error)
}

// WorkloadSource counts a provider's ASSIGNED / IN_PROGRESS jobs scheduled
// within the next 7 days.
type WorkloadSource interface {
	CountUpcomingJobs(ctx context.Context, providerID string) (int, error)
}

// FindOptions tune a FindBestProviders call.
type FindOptions struct {
	// Limit caps the ranked list; defaults to 10.
	Limit int
	// IncludeUnavailable keeps providers whose schedule conflicts with the
	// requested slot in the result instead of filtering them out.
	IncludeUnavailable bool
}

// Service is the vendor matching engine. It is stateless: every call
// recomputes statistics and scores from the injected stores.
type Service struct {
	providers ProviderStore
	workload  WorkloadSource
	stats     *Aggregator
	jobs      *lifecycle.Service
	log       *slog.Logger
}

// NewService constructs the matching engine.
func NewService(providers ProviderStore, workload WorkloadSource, stats *Aggregator, jobs *lifecycle.Service, log *slog.Logger) *Service {
	return &Service{providers: providers, workload: workload, stats: stats, jobs: jobs, log: log}
}

// ScoreProvider computes the full score record for one provider and job.
// Statistics retrieval never fails; a workload-count failure degrades the
// availability component to its safe default.
func (s *Service) ScoreProvider(ctx context.Context, provider *model.Provider, job *model.Job) model.ScoreRecord {
	stats := s.stats.GetProviderStatistics(ctx, provider.ID)

	wctx, cancel := context.WithTimeout(ctx, workloadTimeout)
	defer cancel()
	upcoming, workloadErr := s.workload.CountUpcomingJobs(wctx, provider.ID)
	if workloadErr != nil {
		s.log.Warn("upcoming jobs count failed, degrading availability score",
			"providerId", provider.ID, "err", workloadErr)
	}
	avail := AvailabilityScore(provider.Schedule, job.Slot, upcoming, workloadErr)

	return ComputeScore(provider, stats, job, avail)
}

// FindBestProviders is the primary entry point: it queries candidates,
// scores them in bounded batches, and returns up to opts.Limit records
// sorted by descending total score. When no candidate could be scored it
// substitutes a single fallback record for an arbitrary active provider;
// an empty list means no active provider exists at all.
//
// The whole call runs under a 30-second deadline.
func (s *Service) FindBestProviders(ctx context.Context, job *model.Job, opts FindOptions) ([]model.ScoreRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, matchTimeout)
	defer cancel()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	categories := FindAcceptableCategories(job.Category)
	candidates, err := s.providers.QueryActiveProviders(ctx, categories, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("query active providers: %w", err)
	}

	records := s.scoreBatch(ctx, candidates, job)
	if err := ctx.Err(); err != nil {
		// Exceeding the overall deadline fails the whole call, never a
		// partial result.
		return nil, fmt.Errorf("matching deadline exceeded: %w", err)
	}

	ranked := make([]model.ScoreRecord, 0, len(records))
	for _, r := range records {
		if r.Failed {
			continue
		}
		if !opts.IncludeUnavailable && scheduleConflict(r) {
			continue
		}
		ranked = append(ranked, r)
	}

	if len(ranked) == 0 {
		return s.fallback(ctx, job)
	}

	// Order depends only on computed scores, never on completion order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// scoreBatch scores candidates in fixed-size batches. Scoring is a pure
// function of (provider, job, statistics), so intra-batch completion order
// does not matter. A panicking candidate yields a failed record instead of
// aborting the batch.
func (s *Service) scoreBatch(ctx context.Context, candidates []model.Provider, job *model.Job) []model.ScoreRecord {
	records := make([]model.ScoreRecord, len(candidates))

	for start := 0; start < len(candidates); start += scoreBatchSize {
		if ctx.Err() != nil {
			for i := start; i < len(candidates); i++ {
				records[i] = failedScore(candidates[i].ID)
			}
			break
		}

		end := start + scoreBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						s.log.Warn("scoring candidate panicked",
							"providerId", candidates[i].ID, "panic", r)
						records[i] = failedScore(candidates[i].ID)
					}
				}()
				records[i] = s.ScoreProvider(ctx, &candidates[i], job)
			}(i)
		}
		wg.Wait()
	}
	return records
}

// scheduleConflict reports whether the availability sub-score indicates the
// provider cannot serve the requested slot.
func scheduleConflict(r model.ScoreRecord) bool {
	for _, sub := range r.SubScores {
		if sub.Name == ScoreAvailability {
			return sub.Score == availWrongDay || sub.Score == availNoOverlap
		}
	}
	return false
}

// fallback substitutes an arbitrary active provider when nobody could be
// scored. Returns an empty list when no active provider exists.
func (s *Service) fallback(ctx context.Context, job *model.Job) ([]model.ScoreRecord, error) {
	provider, err := s.providers.FindAnyActive(ctx)
	if err != nil {
		if errors.Is(err, ErrNoProviders) {
			return []model.ScoreRecord{}, nil
		}
		return nil, fmt.Errorf("fallback provider query: %w", err)
	}

	s.log.Warn("no scorable candidates, using fallback provider",
		"jobId", job.ID, "providerId", provider.ID)

	return []model.ScoreRecord{{
		ProviderID: provider.ID,
		Provider:   provider,
		TotalScore: fallbackScore,
		Rationale:  FallbackRationale,
	}}, nil
}

// AutoAssignJob finds the single best provider for the job and performs the
// assignment transition. It fails with ErrNoProviders when even the fallback
// path is exhausted, and with a deadline error when matching exceeds 30s.
func (s *Service) AutoAssignJob(ctx context.Context, jobID string) (*model.Job, *model.ScoreRecord, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	status := lifecycle.Status(job.Status)
	if status != lifecycle.StatusPending && status != lifecycle.StatusAssigned {
		return nil, nil, &lifecycle.InvalidStateError{Op: "auto-assign", Current: status}
	}

	records, err := s.FindBestProviders(ctx, job, FindOptions{Limit: 1, IncludeUnavailable: true})
	if err != nil {
		s.log.Error("finding best providers failed", "jobId", jobID, "err", err)
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, ErrNoProviders
	}

	best := records[0]
	assigned, err := s.jobs.AssignToProvider(ctx, jobID, best.ProviderID, "system")
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("job auto-assigned",
		"jobId", jobID, "providerId", best.ProviderID,
		"score", best.TotalScore, "rationale", best.Rationale)
	return assigned, &best, nil
}
