// Package store implements the persistence boundaries of the engine on
// PostgreSQL via pgx. Jobs are stored document-style: assignment attempts,
// status history and the quote live in jsonb columns next to the row.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Le520407/swift-fix-pro-sub002/internal/lifecycle"
	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// recentWindow is the look-back used for "recent" job and rating counts.
const recentWindow = 30 * 24 * time.Hour

// Postgres implements lifecycle.JobStore, matching.ProviderStore,
// matching.WorkloadSource, matching.JobStatsSource and
// matching.RatingStatsSource.
type Postgres struct {
	pool *pgxpool.Pool
}

// New returns a store backed by the given pool.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

const jobColumns = `id, customer_id, category, title, city, state,
	scheduled_date, slot_start, slot_end, status,
	COALESCE(assigned_provider_id, ''), attempts, status_history, quote,
	COALESCE(cancel_reason, ''), work_progress, actual_end_time,
	created_at, updated_at`

// GetJob loads one job with its embedded attempt and history documents.
func (s *Postgres) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	var j model.Job
	var attempts, history, quote []byte
	err := row.Scan(
		&j.ID, &j.CustomerID, &j.Category, &j.Title, &j.City, &j.State,
		&j.Slot.Date, &j.Slot.Start, &j.Slot.End, &j.Status,
		&j.AssignedProviderID, &attempts, &history, &quote,
		&j.CancelReason, &j.WorkProgress, &j.ActualEndTime,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if err := json.Unmarshal(attempts, &j.Attempts); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	if err := json.Unmarshal(history, &j.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	if len(quote) > 0 && string(quote) != "null" {
		j.Quote = &model.Quote{}
		if err := json.Unmarshal(quote, j.Quote); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
	}
	return &j, nil
}

// SaveJob upserts the full job document. There is no version token: the last
// writer wins when two mutations race on the same job.
func (s *Postgres) SaveJob(ctx context.Context, j *model.Job) error {
	attempts, err := json.Marshal(j.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	history, err := json.Marshal(j.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}
	var quote []byte
	if j.Quote != nil {
		if quote, err = json.Marshal(j.Quote); err != nil {
			return fmt.Errorf("encode quote: %w", err)
		}
	}

	var assignedProvider *string
	if j.AssignedProviderID != "" {
		assignedProvider = &j.AssignedProviderID
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, customer_id, category, title, city, state,
		                   scheduled_date, slot_start, slot_end, status,
		                   assigned_provider_id, attempts, status_history, quote,
		                   cancel_reason, work_progress, actual_end_time,
		                   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12::jsonb, $13::jsonb, $14::jsonb, $15, $16, $17, $18, $19)
		 ON CONFLICT (id) DO UPDATE
		 SET status               = EXCLUDED.status,
		     assigned_provider_id = EXCLUDED.assigned_provider_id,
		     attempts             = EXCLUDED.attempts,
		     status_history       = EXCLUDED.status_history,
		     quote                = EXCLUDED.quote,
		     cancel_reason        = EXCLUDED.cancel_reason,
		     work_progress        = EXCLUDED.work_progress,
		     actual_end_time      = EXCLUDED.actual_end_time,
		     updated_at           = EXCLUDED.updated_at`,
		j.ID, j.CustomerID, string(j.Category), j.Title, j.City, j.State,
		j.Slot.Date, j.Slot.Start, j.Slot.End, j.Status,
		assignedProvider, attempts, history, quote,
		j.CancelReason, j.WorkProgress, j.ActualEndTime,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// ListStalePendingJobs returns IDs of jobs still PENDING after olderThan.
// Used by the assignment sweeper.
func (s *Postgres) ListStalePendingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs
		 WHERE status = 'PENDING' AND updated_at < NOW() - $1::interval
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUpcomingJobs counts the provider's ASSIGNED / IN_PROGRESS jobs
// scheduled within the next 7 days.
func (s *Postgres) CountUpcomingJobs(ctx context.Context, providerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs
		 WHERE assigned_provider_id = $1
		   AND status IN ('ASSIGNED', 'IN_PROGRESS')
		   AND scheduled_date >= NOW()
		   AND scheduled_date < NOW() + INTERVAL '7 days'`,
		providerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count upcoming jobs: %w", err)
	}
	return n, nil
}

// ─── Providers ───────────────────────────────────────────────────────────────

const providerColumns = `p.id, p.user_id, p.display_name, p.active,
	p.categories, COALESCE(p.service_area, ''), p.schedule, p.tier, p.features,
	p.jobs_completed, p.jobs_assigned, p.earnings`

func scanProvider(row pgx.Row) (*model.Provider, error) {
	var (
		p                  model.Provider
		categories         []string
		schedule, features []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.DisplayName, &p.Active,
		&categories, &p.ServiceArea, &schedule, &p.Tier, &features,
		&p.JobsCompleted, &p.JobsAssigned, &p.Earnings,
	)
	if err != nil {
		return nil, err
	}

	p.Categories = make([]model.Category, len(categories))
	for i, c := range categories {
		p.Categories[i] = model.Category(c)
	}
	if len(schedule) > 0 && string(schedule) != "null" {
		if err := json.Unmarshal(schedule, &p.Schedule); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
	}
	if len(features) > 0 && string(features) != "null" {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
	}
	return &p, nil
}

// QueryActiveProviders returns up to limit active providers whose service
// categories intersect the acceptable set. The inner join on users drops
// providers without a resolvable owning user.
func (s *Postgres) QueryActiveProviders(ctx context.Context, categories []model.Category, limit int) ([]model.Provider, error) {
	cats := make([]string, len(categories))
	for i, c := range categories {
		cats[i] = string(c)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumns+`
		 FROM providers p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.active = true AND p.categories && $1::text[]
		 LIMIT $2`,
		cats, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query active providers: %w", err)
	}
	defer rows.Close()

	providers := make([]model.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	return providers, rows.Err()
}

// FindAnyActive returns an arbitrary active provider for the fallback path.
func (s *Postgres) FindAnyActive(ctx context.Context) (*model.Provider, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+`
		 FROM providers p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.active = true
		 LIMIT 1`,
	)
	p, err := scanProvider(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, matching.ErrNoProviders
	}
	if err != nil {
		return nil, fmt.Errorf("find any active provider: %w", err)
	}
	return p, nil
}

// ─── Statistics aggregation ──────────────────────────────────────────────────

// AggregateJobStats computes the job-derived half of a provider's statistics
// in one aggregate query.
func (s *Postgres) AggregateJobStats(ctx context.Context, providerID string) (model.JobStats, error) {
	var st model.JobStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		        COUNT(*) FILTER (WHERE status = 'CANCELLED'),
		        COALESCE(SUM((quote->>'amount')::numeric) FILTER (WHERE status = 'COMPLETED'), 0),
		        COALESCE(AVG((quote->>'amount')::numeric) FILTER (WHERE status = 'COMPLETED'), 0),
		        COUNT(*) FILTER (WHERE status = 'COMPLETED' AND actual_end_time > NOW() - $2::interval)
		 FROM jobs
		 WHERE assigned_provider_id = $1
		    OR attempts @> ('[{"providerId":"' || $1 || '","response":"ACCEPTED"}]')::jsonb`,
		providerID, fmt.Sprintf("%d hours", int(recentWindow.Hours())),
	).Scan(&st.TotalJobs, &st.CompletedJobs, &st.CancelledJobs,
		&st.Revenue, &st.AverageValue, &st.RecentJobs)
	if err != nil {
		return model.JobStats{}, fmt.Errorf("aggregate job stats: %w", err)
	}

	if st.TotalJobs > 0 {
		st.CompletionRate = float64(st.CompletedJobs) / float64(st.TotalJobs) * 100
	}
	return st, nil
}

// AggregateRatingStats computes the rating-derived half of a provider's
// statistics: average, counts and the 1–5 star distribution.
func (s *Postgres) AggregateRatingStats(ctx context.Context, providerID string) (model.RatingStats, error) {
	var st model.RatingStats
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(stars), 0),
		        COUNT(*),
		        COUNT(*) FILTER (WHERE created_at > NOW() - $2::interval)
		 FROM ratings
		 WHERE provider_id = $1`,
		providerID, fmt.Sprintf("%d hours", int(recentWindow.Hours())),
	).Scan(&st.Average, &st.Count, &st.RecentCount)
	if err != nil {
		return model.RatingStats{}, fmt.Errorf("aggregate rating stats: %w", err)
	}

	st.Distribution = map[int]int{}
	rows, err := s.pool.Query(ctx,
		`SELECT stars, COUNT(*) FROM ratings WHERE provider_id = $1 GROUP BY stars`,
		providerID,
	)
	if err != nil {
		return model.RatingStats{}, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stars, n int
		if err := rows.Scan(&stars, &n); err != nil {
			return model.RatingStats{}, fmt.Errorf("scan distribution: %w", err)
		}
		st.Distribution[stars] = n
	}
	return st, rows.Err()
}
