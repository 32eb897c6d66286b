package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// ErrNotFound is returned when a job identity does not resolve.
var ErrNotFound = errors.New("job not found")

// InvalidStateError is returned when an operation is requested from an
// incompatible job status. No mutation is performed.
type InvalidStateError struct {
	Op      string
	Current Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not allowed while job is %s", e.Op, e.Current)
}

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Redis event channels consumed by the gateway for SSE forwarding.
const (
	EventJobAssigned      = "EVENT_JOB_ASSIGNED"
	EventJobStatusChanged = "EVENT_JOB_STATUS_CHANGED"
)

// JobStore is the persistence boundary for job records. Jobs are read and
// later written in two separate steps with no version token; two concurrent
// mutations of the same job last-write-win.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
}

// Service drives jobs through the assignment state machine. It is
// transport-agnostic and can be used by any handler or orchestrator.
type Service struct {
	jobs JobStore
	rdb  *redis.Client
	log  *slog.Logger
}

// NewService returns a configured Service. rdb may be nil; events are then
// skipped.
func NewService(jobs JobStore, rdb *redis.Client, log *slog.Logger) *Service {
	return &Service{jobs: jobs, rdb: rdb, log: log}
}

// GetJob returns a job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// CreateJob persists a freshly constructed job in its PENDING state.
func (s *Service) CreateJob(ctx context.Context, job *model.Job) error {
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("save new job: %w", err)
	}
	return nil
}

// AssignToProvider offers the job to a provider: records a new assignment
// attempt with response PENDING and moves the job to ASSIGNED.
//
// Valid from PENDING, and from ASSIGNED when the open offer is being
// superseded by a reassignment (the previous attempt is closed as REJECTED).
func (s *Service) AssignToProvider(ctx context.Context, jobID, providerID, actor string) (*model.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	status := Status(job.Status)
	if status != StatusPending && status != StatusAssigned {
		return nil, &InvalidStateError{Op: "assign", Current: status}
	}

	if status == StatusAssigned {
		closeOpenAttempt(job, "superseded by reassignment")
	}

	now := time.Now().UTC()
	job.AssignedProviderID = providerID
	job.Attempts = append(job.Attempts, model.AssignmentAttempt{
		ProviderID: providerID,
		AssignedAt: now,
		Response:   model.ResponsePending,
	})
	s.transition(job, StatusAssigned, actor, fmt.Sprintf("offered to provider %s", providerID))

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save assigned job: %w", err)
	}

	s.publish(ctx, EventJobAssigned, map[string]string{
		"jobId":      job.ID,
		"providerId": providerID,
	})
	return job, nil
}

// RecordProviderResponse applies the provider's answer to an open offer.
// ACCEPTED moves the job to IN_DISCUSSION; REJECTED returns it to PENDING
// and clears the assigned provider so it can be reassigned.
func (s *Service) RecordProviderResponse(ctx context.Context, jobID, providerID string, response model.AttemptResponse, reason string) (*model.Job, error) {
	if response != model.ResponseAccepted && response != model.ResponseRejected {
		return nil, &ValidationError{Msg: fmt.Sprintf("response must be ACCEPTED or REJECTED, got %q", response)}
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if Status(job.Status) != StatusAssigned {
		return nil, &InvalidStateError{Op: "provider response", Current: Status(job.Status)}
	}
	if job.AssignedProviderID != providerID {
		return nil, &ValidationError{Msg: "job is not offered to this provider"}
	}

	attempt := openAttempt(job, providerID)
	if attempt == nil {
		return nil, &ValidationError{Msg: "no open assignment attempt for this provider"}
	}
	attempt.Response = response

	if response == model.ResponseAccepted {
		s.transition(job, StatusInDiscussion, providerID, "provider accepted the job")
	} else {
		attempt.RejectionReason = reason
		job.AssignedProviderID = ""
		s.transition(job, StatusPending, providerID, "provider rejected the job")
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save provider response: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":    job.ID,
		"status":   job.Status,
		"response": string(response),
	})
	return job, nil
}

// SubmitQuote records the provider's price offer and moves the job to
// QUOTE_SENT. Valid from ASSIGNED, IN_DISCUSSION or QUOTE_REJECTED.
func (s *Service) SubmitQuote(ctx context.Context, jobID string, amount float64, details, actor string) (*model.Job, error) {
	if amount <= 0 {
		return nil, &ValidationError{Msg: "quote amount must be positive"}
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !IsQuotable(Status(job.Status)) {
		return nil, &InvalidStateError{Op: "quote submission", Current: Status(job.Status)}
	}

	job.Quote = &model.Quote{Amount: amount, Details: details, SubmittedAt: time.Now().UTC()}
	s.transition(job, StatusQuoteSent, actor, fmt.Sprintf("quote of %.2f submitted", amount))

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save quote: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":  job.ID,
		"status": job.Status,
	})
	return job, nil
}

// RespondToQuote applies the customer's answer to a sent quote.
// Valid only from QUOTE_SENT.
func (s *Service) RespondToQuote(ctx context.Context, jobID string, accepted bool, actor string) (*model.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if Status(job.Status) != StatusQuoteSent {
		return nil, &InvalidStateError{Op: "quote response", Current: Status(job.Status)}
	}

	if accepted {
		s.transition(job, StatusQuoteAccepted, actor, "quote accepted")
	} else {
		s.transition(job, StatusQuoteRejected, actor, "quote rejected")
	}

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save quote response: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":  job.ID,
		"status": job.Status,
	})
	return job, nil
}

// UpdateStatus performs a generic transition validated against the state
// machine, maintaining the provider reference and completion side effects.
func (s *Service) UpdateStatus(ctx context.Context, jobID, newStatusStr, actor, notes string) (*model.Job, error) {
	newStatus, err := ParseStatus(newStatusStr)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	current := Status(job.Status)
	if !IsTransitionAllowed(current, newStatus) {
		return nil, &InvalidStateError{Op: fmt.Sprintf("transition to %s", newStatus), Current: current}
	}

	if !CarriesProvider(newStatus) {
		job.AssignedProviderID = ""
	}
	if newStatus == StatusCompleted {
		now := time.Now().UTC()
		job.WorkProgress = 100
		job.ActualEndTime = &now
	}
	s.transition(job, newStatus, actor, notes)

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save status update: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":  job.ID,
		"status": job.Status,
	})
	return job, nil
}

// Cancel moves the job to CANCELLED, recording the reason and actor.
// Valid only from PENDING, ASSIGNED, IN_DISCUSSION or QUOTE_SENT.
func (s *Service) Cancel(ctx context.Context, jobID, actor, reason string) (*model.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if !IsCancellable(Status(job.Status)) {
		return nil, &InvalidStateError{Op: "cancellation", Current: Status(job.Status)}
	}

	job.CancelReason = reason
	job.AssignedProviderID = ""
	s.transition(job, StatusCancelled, actor, reason)

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save cancellation: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":  job.ID,
		"status": job.Status,
	})
	return job, nil
}

// Complete marks the work done: progress 100%, actual end time recorded.
// Valid only from IN_PROGRESS.
func (s *Service) Complete(ctx context.Context, jobID, actor string) (*model.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if Status(job.Status) != StatusInProgress {
		return nil, &InvalidStateError{Op: "completion", Current: Status(job.Status)}
	}

	now := time.Now().UTC()
	job.WorkProgress = 100
	job.ActualEndTime = &now
	s.transition(job, StatusCompleted, actor, "work completed")

	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save completion: %w", err)
	}

	s.publish(ctx, EventJobStatusChanged, map[string]string{
		"jobId":  job.ID,
		"status": job.Status,
	})
	return job, nil
}

// transition applies the new status and appends exactly one history entry.
func (s *Service) transition(job *model.Job, to Status, actor, notes string) {
	now := time.Now().UTC()
	job.Status = string(to)
	job.UpdatedAt = now
	job.StatusHistory = append(job.StatusHistory, model.StatusHistoryEntry{
		Status: string(to),
		At:     now,
		Actor:  actor,
		Notes:  notes,
	})
}

// publish sends an event to Redis. Failures are logged, never raised.
func (s *Service) publish(ctx context.Context, channel string, payload map[string]string) {
	if s.rdb == nil {
		return
	}
	event, _ := json.Marshal(payload)
	if err := s.rdb.Publish(ctx, channel, event).Err(); err != nil {
		s.log.Warn("publish failed", "channel", channel, "err", err)
	}
}

// openAttempt returns the provider's attempt still awaiting a response.
func openAttempt(job *model.Job, providerID string) *model.AssignmentAttempt {
	for i := len(job.Attempts) - 1; i >= 0; i-- {
		a := &job.Attempts[i]
		if a.ProviderID == providerID && a.Response == model.ResponsePending {
			return a
		}
	}
	return nil
}

// closeOpenAttempt rejects any attempt still pending, keeping the invariant
// that at most one offer is open at a time.
func closeOpenAttempt(job *model.Job, reason string) {
	for i := range job.Attempts {
		a := &job.Attempts[i]
		if a.Response == model.ResponsePending {
			a.Response = model.ResponseRejected
			a.RejectionReason = reason
		}
	}
}
