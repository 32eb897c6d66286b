// Package model defines the shared data structures of the matching service:
// jobs, providers, ratings, and the derived records the engine computes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Category is a job / provider service category.
type Category string

const (
	CategoryPlumbing    Category = "plumbing"
	CategoryElectrical  Category = "electrical"
	CategoryCarpentry   Category = "carpentry"
	CategoryPainting    Category = "painting"
	CategoryCleaning    Category = "cleaning"
	CategoryHVAC        Category = "hvac"
	CategoryAppliance   Category = "appliance_repair"
	CategoryGardening   Category = "gardening"
	CategoryRoofing     Category = "roofing"
	CategoryGeneral     Category = "general"
)

// MembershipTier is a provider's subscription level.
type MembershipTier string

const (
	TierBasic        MembershipTier = "BASIC"
	TierProfessional MembershipTier = "PROFESSIONAL"
	TierPremium      MembershipTier = "PREMIUM"
	TierEnterprise   MembershipTier = "ENTERPRISE"
)

// AttemptResponse is a provider's answer to an assignment offer.
type AttemptResponse string

const (
	ResponsePending  AttemptResponse = "PENDING"
	ResponseAccepted AttemptResponse = "ACCEPTED"
	ResponseRejected AttemptResponse = "REJECTED"
)

// TimeSlot is a requested service window on a given date.
// Start and End are "HH:MM" clock times; the window is half-open [Start, End).
type TimeSlot struct {
	Date  time.Time `json:"date"`
	Start string    `json:"start"`
	End   string    `json:"end"`
}

// AssignmentAttempt records one offer of a job to a provider.
type AssignmentAttempt struct {
	ProviderID      string          `json:"providerId"`
	AssignedAt      time.Time       `json:"assignedAt"`
	Response        AttemptResponse `json:"response"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
}

// StatusHistoryEntry is one append-only entry in a job's status log.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
	Actor     string    `json:"actor"`
	Notes     string    `json:"notes,omitempty"`
}

// Quote is the provider's price offer for a job.
type Quote struct {
	Amount      float64   `json:"amount"`
	Details     string    `json:"details,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Job is a unit of maintenance work requested by a customer.
type Job struct {
	ID                 string               `json:"id"`
	CustomerID         string               `json:"customerId"`
	Category           Category             `json:"category"`
	Title              string               `json:"title"`
	City               string               `json:"city"`
	State              string               `json:"state"`
	Slot               TimeSlot             `json:"slot"`
	Status             string               `json:"status"`
	AssignedProviderID string               `json:"assignedProviderId,omitempty"`
	Attempts           []AssignmentAttempt  `json:"attempts"`
	StatusHistory      []StatusHistoryEntry `json:"statusHistory"`
	Quote              *Quote               `json:"quote,omitempty"`
	CancelReason       string               `json:"cancelReason,omitempty"`
	WorkProgress       int                  `json:"workProgress"`
	ActualEndTime      *time.Time           `json:"actualEndTime,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// NewJob constructs a job in its initial state with one history entry.
func NewJob(customerID string, category Category, title, city, state string, slot TimeSlot) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Category:   category,
		Title:      title,
		City:       city,
		State:      state,
		Slot:       slot,
		Status:     "PENDING",
		Attempts:   []AssignmentAttempt{},
		StatusHistory: []StatusHistoryEntry{
			{Status: "PENDING", At: now, Actor: customerID, Notes: "job created"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ScheduleEntry is one weekly availability window declared by a provider.
// Start and End are "HH:MM"; windows are same-day and half-open.
type ScheduleEntry struct {
	Day       time.Weekday `json:"day"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
	Available bool         `json:"available"`
}

// MembershipFeatures are the per-tier feature flags on a provider account.
type MembershipFeatures struct {
	PriorityAssignment bool `json:"priorityAssignment"`
	EmergencyService   bool `json:"emergencyService"`
	FeaturedListing    bool `json:"featuredListing"`
	Analytics          bool `json:"analytics"`
	PrioritySupport    bool `json:"prioritySupport"`
}

// Provider is a service-provider profile. Counters are maintained by the
// billing/profile collaborators and read-only inside the matching engine.
type Provider struct {
	ID            string             `json:"id"`
	UserID        string             `json:"userId"`
	DisplayName   string             `json:"displayName"`
	Active        bool               `json:"active"`
	Categories    []Category         `json:"categories"`
	ServiceArea   string             `json:"serviceArea"`
	Schedule      []ScheduleEntry    `json:"schedule"`
	Tier          MembershipTier     `json:"tier"`
	Features      MembershipFeatures `json:"features"`
	JobsCompleted int                `json:"jobsCompleted"`
	JobsAssigned  int                `json:"jobsAssigned"`
	Earnings      float64            `json:"earnings"`
}

// HasCategory reports whether the provider lists c exactly.
func (p *Provider) HasCategory(c Category) bool {
	for _, pc := range p.Categories {
		if pc == c {
			return true
		}
	}
	return false
}

// JobStats is the job-derived half of a provider's statistics.
type JobStats struct {
	TotalJobs      int     `json:"totalJobs"`
	CompletedJobs  int     `json:"completedJobs"`
	CancelledJobs  int     `json:"cancelledJobs"`
	CompletionRate float64 `json:"completionRate"` // 0–100
	AverageValue   float64 `json:"averageValue"`
	Revenue        float64 `json:"revenue"`
	RecentJobs     int     `json:"recentJobs"` // completed within 30 days
}

// RatingStats is the rating-derived half of a provider's statistics.
type RatingStats struct {
	Average       float64     `json:"average"`
	Count         int         `json:"count"`
	RecentCount   int         `json:"recentCount"` // within 30 days
	Distribution  map[int]int `json:"distribution"`
}

// ProviderStats are the on-demand aggregates the scorer consumes.
// Recomputed on every matching call, never cached.
type ProviderStats struct {
	JobStats
	RatingStats
	ExperienceLevel string  `json:"experienceLevel"`
	Reliability     float64 `json:"reliability"` // 0–100
}

// Experience level bands by completed-job count.
const (
	ExperienceNew          = "NEW"
	ExperienceBeginner     = "BEGINNER"
	ExperienceIntermediate = "INTERMEDIATE"
	ExperienceExperienced  = "EXPERIENCED"
	ExperienceAdvanced     = "ADVANCED"
	ExperienceExpert       = "EXPERT"
)

// DeriveExperienceLevel maps a completed-job count to its band.
func DeriveExperienceLevel(completed int) string {
	switch {
	case completed >= 100:
		return ExperienceExpert
	case completed >= 50:
		return ExperienceAdvanced
	case completed >= 15:
		return ExperienceExperienced
	case completed >= 5:
		return ExperienceIntermediate
	case completed >= 1:
		return ExperienceBeginner
	default:
		return ExperienceNew
	}
}

// SubScore is one component of a provider's total score.
type SubScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`  // clamped to [0,100]
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"` // Score × Weight
}

// ScoreRecord is the ephemeral per-(provider, job) output of the scorer.
type ScoreRecord struct {
	ProviderID string     `json:"providerId"`
	Provider   *Provider  `json:"provider,omitempty"`
	SubScores  []SubScore `json:"subScores"`
	TotalScore float64    `json:"totalScore"`
	Rationale  string     `json:"rationale"`
	Failed     bool       `json:"-"`
}

// Rating is one customer rating of a provider for a completed job.
type Rating struct {
	ID         string    `json:"id"`
	JobID      string    `json:"jobId"`
	ProviderID string    `json:"providerId"`
	CustomerID string    `json:"customerId"`
	Stars      int       `json:"stars"` // 1–5
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
