package matching_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Le520407/swift-fix-pro-sub002/internal/lifecycle"
	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeProviderStore struct {
	providers []model.Provider
	fallback  *model.Provider
	queryErr  error
}

func (f *fakeProviderStore) QueryActiveProviders(_ context.Context, categories []model.Category, limit int) ([]model.Provider, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	acceptable := map[model.Category]bool{}
	for _, c := range categories {
		acceptable[c] = true
	}
	var out []model.Provider
	for _, p := range f.providers {
		if !p.Active {
			continue
		}
		for _, c := range p.Categories {
			if acceptable[c] {
				out = append(out, p)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeProviderStore) FindAnyActive(_ context.Context) (*model.Provider, error) {
	if f.fallback == nil {
		return nil, matching.ErrNoProviders
	}
	return f.fallback, nil
}

type fakeWorkload struct {
	counts map[string]int
	panics map[string]bool
}

func (f *fakeWorkload) CountUpcomingJobs(_ context.Context, providerID string) (int, error) {
	if f.panics[providerID] {
		panic("workload source exploded")
	}
	return f.counts[providerID], nil
}

type fakeJobStatsSource struct {
	stats map[string]model.JobStats
	err   error
}

func (f *fakeJobStatsSource) AggregateJobStats(_ context.Context, providerID string) (model.JobStats, error) {
	if f.err != nil {
		return model.JobStats{}, f.err
	}
	return f.stats[providerID], nil
}

type fakeRatingStatsSource struct {
	stats map[string]model.RatingStats
	err   error
}

func (f *fakeRatingStatsSource) AggregateRatingStats(_ context.Context, providerID string) (model.RatingStats, error) {
	if f.err != nil {
		return model.RatingStats{}, f.err
	}
	return f.stats[providerID], nil
}

type memJobStore struct {
	jobs map[string]model.Job
}

func newMemJobStore(jobs ...*model.Job) *memJobStore {
	s := &memJobStore{jobs: map[string]model.Job{}}
	for _, j := range jobs {
		s.jobs[j.ID] = *j
	}
	return s
}

func (s *memJobStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	c := j
	return &c, nil
}

func (s *memJobStore) SaveJob(_ context.Context, j *model.Job) error {
	s.jobs[j.ID] = *j
	return nil
}

// ─── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	providers *fakeProviderStore
	workload  *fakeWorkload
	jobStats  *fakeJobStatsSource
	ratings   *fakeRatingStatsSource
	store     *memJobStore
	svc       *matching.Service
}

func newHarness(t *testing.T, jobs ...*model.Job) *harness {
	t.Helper()
	h := &harness{
		providers: &fakeProviderStore{},
		workload:  &fakeWorkload{counts: map[string]int{}, panics: map[string]bool{}},
		jobStats:  &fakeJobStatsSource{stats: map[string]model.JobStats{}},
		ratings:   &fakeRatingStatsSource{stats: map[string]model.RatingStats{}},
		store:     newMemJobStore(jobs...),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	lc := lifecycle.NewService(h.store, nil, log)
	agg := matching.NewAggregator(h.jobStats, h.ratings, log)
	h.svc = matching.NewService(h.providers, h.workload, agg, lc, log)
	return h
}

func (h *harness) addProvider(p model.Provider, js model.JobStats, rs model.RatingStats) {
	h.providers.providers = append(h.providers.providers, p)
	h.jobStats.stats[p.ID] = js
	h.ratings.stats[p.ID] = rs
}

func activePlumber(id string) model.Provider {
	return model.Provider{
		ID: id, UserID: "user-" + id, Active: true,
		Categories: []model.Category{model.CategoryPlumbing},
	}
}

// ─── FindBestProviders ───────────────────────────────────────────────────────

func TestFindBestProviders_SortedAndLimited(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)

	h.addProvider(activePlumber("weak"), model.JobStats{}, model.RatingStats{})
	h.addProvider(activePlumber("strong"),
		model.JobStats{TotalJobs: 105, CompletedJobs: 100, CompletionRate: 95, RecentJobs: 5},
		model.RatingStats{Average: 4.9, Count: 120, RecentCount: 5})
	h.addProvider(activePlumber("middle"),
		model.JobStats{TotalJobs: 10, CompletedJobs: 8, CompletionRate: 80, RecentJobs: 1},
		model.RatingStats{Average: 4.0, Count: 12, RecentCount: 1})

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 2})
	require.NoError(t, err)

	require.Len(t, records, 2, "limit must cap the result")
	assert.Equal(t, "strong", records[0].ProviderID)
	assert.Equal(t, "middle", records[1].ProviderID)
	assert.GreaterOrEqual(t, records[0].TotalScore, records[1].TotalScore)
}

func TestFindBestProviders_FiltersCategoryMismatch(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)

	gardener := model.Provider{
		ID: "gardener", UserID: "user-g", Active: true,
		Categories: []model.Category{model.CategoryGardening},
	}
	h.addProvider(gardener, model.JobStats{}, model.RatingStats{})
	h.addProvider(activePlumber("plumber"), model.JobStats{}, model.RatingStats{})

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "plumber", records[0].ProviderID)
}

func TestFindBestProviders_ExcludesScheduleConflictsByDefault(t *testing.T) {
	job := plumbingJob() // Monday 10:00–11:00
	h := newHarness(t, job)

	busy := activePlumber("busy")
	busy.Schedule = []model.ScheduleEntry{
		{Day: time.Tuesday, Start: "09:00", End: "17:00", Available: true},
	}
	free := activePlumber("free")
	h.addProvider(busy, model.JobStats{}, model.RatingStats{})
	h.addProvider(free, model.JobStats{}, model.RatingStats{})

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "free", records[0].ProviderID)

	records, err = h.svc.FindBestProviders(context.Background(), job,
		matching.FindOptions{Limit: 10, IncludeUnavailable: true})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFindBestProviders_FallbackWhenNoCandidates(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)
	h.providers.fallback = &model.Provider{
		ID: "any", UserID: "user-any", Active: true,
		Categories: []model.Category{model.CategoryCleaning},
	}

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 3})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "any", records[0].ProviderID)
	assert.Equal(t, 50.0, records[0].TotalScore)
	assert.Equal(t, matching.FallbackRationale, records[0].Rationale)
}

func TestFindBestProviders_EmptyWhenNoActiveProvidersAtAll(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 3})
	require.NoError(t, err)
	assert.Empty(t, records)
}

// A single misbehaving candidate must not take the batch down.
func TestFindBestProviders_IsolatesPerCandidateFailure(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)

	h.addProvider(activePlumber("broken"), model.JobStats{}, model.RatingStats{})
	h.addProvider(activePlumber("healthy"), model.JobStats{}, model.RatingStats{})
	h.workload.panics["broken"] = true

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "healthy", records[0].ProviderID)
}

// Degraded statistics still produce a complete score record.
func TestFindBestProviders_StatsFailureDegradesToDefaults(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)
	h.addProvider(activePlumber("p1"), model.JobStats{}, model.RatingStats{})
	h.jobStats.err = errors.New("jobs table on fire")
	h.ratings.err = errors.New("ratings table on fire")

	records, err := h.svc.FindBestProviders(context.Background(), job, matching.FindOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Greater(t, records[0].TotalScore, 0.0)
}

// ─── AutoAssignJob ───────────────────────────────────────────────────────────

func TestAutoAssignJob_AssignsBestMatch(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)
	h.addProvider(activePlumber("best"),
		model.JobStats{TotalJobs: 50, CompletedJobs: 48, CompletionRate: 96, RecentJobs: 3},
		model.RatingStats{Average: 4.7, Count: 60, RecentCount: 4})

	assigned, match, err := h.svc.AutoAssignJob(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, string(lifecycle.StatusAssigned), assigned.Status)
	assert.Equal(t, "best", assigned.AssignedProviderID)
	require.Len(t, assigned.Attempts, 1)
	assert.Equal(t, model.ResponsePending, assigned.Attempts[0].Response)
	require.NotNil(t, match)
	assert.Equal(t, "best", match.ProviderID)

	stored := h.store.jobs[job.ID]
	assert.Equal(t, string(lifecycle.StatusAssigned), stored.Status)
}

func TestAutoAssignJob_UsesFallbackProvider(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)
	h.providers.fallback = &model.Provider{
		ID: "any", UserID: "user-any", Active: true,
		Categories: []model.Category{model.CategoryCleaning},
	}

	assigned, match, err := h.svc.AutoAssignJob(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, "any", assigned.AssignedProviderID)
	assert.Equal(t, 50.0, match.TotalScore)
	assert.Equal(t, matching.FallbackRationale, match.Rationale)
}

func TestAutoAssignJob_ExhaustedFallback(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)

	_, _, err := h.svc.AutoAssignJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, matching.ErrNoProviders)
}

func TestAutoAssignJob_JobNotFound(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.svc.AutoAssignJob(context.Background(), "missing")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestAutoAssignJob_InvalidState(t *testing.T) {
	job := plumbingJob()
	job.Status = string(lifecycle.StatusCompleted)
	h := newHarness(t, job)
	h.addProvider(activePlumber("p1"), model.JobStats{}, model.RatingStats{})

	_, _, err := h.svc.AutoAssignJob(context.Background(), job.ID)
	var invalidState *lifecycle.InvalidStateError
	assert.ErrorAs(t, err, &invalidState)
}

func TestAutoAssignJob_ReassignsPendingAfterRejection(t *testing.T) {
	job := plumbingJob()
	h := newHarness(t, job)
	h.addProvider(activePlumber("p1"), model.JobStats{}, model.RatingStats{})

	lc := lifecycle.NewService(h.store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, _, err := h.svc.AutoAssignJob(ctx, job.ID)
	require.NoError(t, err)
	_, err = lc.RecordProviderResponse(ctx, job.ID, "p1", model.ResponseRejected, "no capacity")
	require.NoError(t, err)

	assigned, _, err := h.svc.AutoAssignJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(lifecycle.StatusAssigned), assigned.Status)
	assert.Len(t, assigned.Attempts, 2)
}
