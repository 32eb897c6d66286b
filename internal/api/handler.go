// Package api implements the HTTP handlers of the matching service.
//
// Routes:
//
//	POST /jobs                        → create a job (PENDING)
//	GET  /jobs/{id}                   → fetch a job
//	GET  /jobs/{id}/matches           → ranked provider recommendations
//	POST /jobs/{id}/auto-assign       → one-click best-match assignment
//	POST /jobs/{id}/respond           → provider accepts / rejects the offer
//	POST /jobs/{id}/quote             → provider submits a quote
//	POST /jobs/{id}/quote-response    → customer accepts / rejects the quote
//	POST /jobs/{id}/status            → generic validated status transition
//	POST /jobs/{id}/cancel            → customer cancellation
//	POST /jobs/{id}/complete          → provider marks work done
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Le520407/swift-fix-pro-sub002/internal/lifecycle"
	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
	"github.com/Le520407/swift-fix-pro-sub002/internal/model"
)

// Handler holds shared dependencies.
type Handler struct {
	matcher  *matching.Service
	jobs     *lifecycle.Service
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(matcher *matching.Service, jobs *lifecycle.Service, log *slog.Logger) *Handler {
	return &Handler{
		matcher:  matcher,
		jobs:     jobs,
		validate: validator.New(),
		log:      log,
	}
}

// RegisterRoutes mounts all matching-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/jobs", h.handleJobs)
	mux.HandleFunc("/jobs/", h.handleJobAction)
}

// ─── Route dispatch ──────────────────────────────────────────────────────────

// handleJobs handles POST /jobs.
func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.createJob(w, r)
}

// handleJobAction handles GET /jobs/{id}[/matches] and POST /jobs/{id}/{action}.
func (h *Handler) handleJobAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		h.getJob(w, r, parts[1])
	case len(parts) == 3 && r.Method == http.MethodGet && parts[2] == "matches":
		h.findMatches(w, r, parts[1])
	case len(parts) == 3 && r.Method == http.MethodPost:
		h.jobAction(w, r, parts[1], parts[2])
	default:
		jsonError(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) jobAction(w http.ResponseWriter, r *http.Request, jobID, action string) {
	switch action {
	case "auto-assign":
		h.autoAssign(w, r, jobID)
	case "respond":
		h.respond(w, r, jobID)
	case "quote":
		h.submitQuote(w, r, jobID)
	case "quote-response":
		h.respondToQuote(w, r, jobID)
	case "status":
		h.updateStatus(w, r, jobID)
	case "cancel":
		h.cancel(w, r, jobID)
	case "complete":
		h.complete(w, r, jobID)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

// ─── Individual handlers ─────────────────────────────────────────────────────

type createJobRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	Category   string `json:"category" validate:"required"`
	Title      string `json:"title" validate:"required"`
	City       string `json:"city"`
	State      string `json:"state"`
	Date       string `json:"date" validate:"required"` // YYYY-MM-DD
	Start      string `json:"start" validate:"required"`
	End        string `json:"end" validate:"required"`
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if !h.decode(w, r, &body) {
		return
	}

	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	job := model.NewJob(body.CustomerID, model.Category(body.Category),
		body.Title, body.City, body.State,
		model.TimeSlot{Date: date, Start: body.Start, End: body.End})

	if err := h.jobs.CreateJob(r.Context(), job); err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

// findMatches returns the ranked recommendation list for a job.
// Query params: limit (default 10), includeUnavailable (default false).
func (h *Handler) findMatches(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	opts := matching.FindOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}
	opts.IncludeUnavailable = r.URL.Query().Get("includeUnavailable") == "true"

	records, err := h.matcher.FindBestProviders(r.Context(), job, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, records)
}

func (h *Handler) autoAssign(w http.ResponseWriter, r *http.Request, jobID string) {
	job, score, err := h.matcher.AutoAssignJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, map[string]any{"job": job, "match": score})
}

type respondRequest struct {
	ProviderID string `json:"providerId" validate:"required"`
	Response   string `json:"response" validate:"required,oneof=ACCEPTED REJECTED"`
	Reason     string `json:"reason"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, jobID string) {
	var body respondRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.RecordProviderResponse(r.Context(), jobID,
		body.ProviderID, model.AttemptResponse(body.Response), body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

type quoteRequest struct {
	ProviderID string  `json:"providerId" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	Details    string  `json:"details"`
}

func (h *Handler) submitQuote(w http.ResponseWriter, r *http.Request, jobID string) {
	var body quoteRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.SubmitQuote(r.Context(), jobID, body.Amount, body.Details, body.ProviderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

type quoteResponseRequest struct {
	CustomerID string `json:"customerId" validate:"required"`
	Accepted   *bool  `json:"accepted" validate:"required"`
}

func (h *Handler) respondToQuote(w http.ResponseWriter, r *http.Request, jobID string) {
	var body quoteResponseRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.RespondToQuote(r.Context(), jobID, *body.Accepted, body.CustomerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

type updateStatusRequest struct {
	NewStatus string `json:"newStatus" validate:"required"`
	Actor     string `json:"actor" validate:"required"`
	Notes     string `json:"notes"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	var body updateStatusRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.UpdateStatus(r.Context(), jobID, body.NewStatus, body.Actor, body.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

type cancelRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request, jobID string) {
	var body cancelRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.Cancel(r.Context(), jobID, body.Actor, body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

type completeRequest struct {
	Actor string `json:"actor" validate:"required"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, jobID string) {
	var body completeRequest
	if !h.decode(w, r, &body) {
		return
	}
	job, err := h.jobs.Complete(r.Context(), jobID, body.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, job)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decode parses and validates a JSON request body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var invalidState *lifecycle.InvalidStateError
	var validation *lifecycle.ValidationError

	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &invalidState):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &validation):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, matching.ErrNoProviders):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "matching timed out", http.StatusGatewayTimeout)
	default:
		h.log.Error("request failed", "err", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
