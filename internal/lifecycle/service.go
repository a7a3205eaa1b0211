package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/courier-dispatch/internal/models"
	"github.com/example/courier-dispatch/internal/observability"
	"github.com/example/courier-dispatch/internal/storage"
)

// Announcer receives fire-and-forget notification of newly created jobs.
type Announcer interface {
	AnnounceNewJob(job *models.HydratedJob)
}

// FeePayments is the delivery-fee hold/capture flow. Optional; a nil
// implementation disables payments entirely.
type FeePayments interface {
	HoldFee(ctx context.Context, amount int64, currency, customerID string) (string, error)
	CaptureFee(ctx context.Context, paymentIntentID string) error
	ReleaseFee(ctx context.Context, paymentIntentID string) error
}

// Service drives the job lifecycle. All transition atomicity lives in the
// store; this layer adds validation, announcements, fee handling, metrics
// and logging.
type Service struct {
	Store       storage.JobStore
	Announce    Announcer   // optional
	Payments    FeePayments // optional
	FeeAmount   int64
	FeeCurrency string
	Logger      *slog.Logger

	mu       sync.Mutex
	feeHolds map[string]string // jobID -> payment intent, process-local
}

func NewService(store storage.JobStore, announce Announcer, payments FeePayments, feeAmount int64, feeCurrency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:       store,
		Announce:    announce,
		Payments:    payments,
		FeeAmount:   feeAmount,
		FeeCurrency: feeCurrency,
		Logger:      logger,
		feeHolds:    make(map[string]string),
	}
}

func (s *Service) CreateJob(ctx context.Context, draft models.JobDraft) (*models.HydratedJob, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	job, err := s.Store.CreateJob(ctx, draft)
	if err != nil {
		return nil, err
	}
	observability.JobsCreatedTotal.Inc()
	s.Logger.Info("job created", "job_id", job.ID, "sender_id", job.SenderID)
	s.holdFee(ctx, job)
	if s.Announce != nil {
		s.Announce.AnnounceNewJob(job)
	}
	return job, nil
}

func (s *Service) Claim(ctx context.Context, jobID, riderID string) (*models.HydratedJob, error) {
	if jobID == "" || riderID == "" {
		return nil, fmt.Errorf("%w: job id and rider id are required", models.ErrValidation)
	}
	job, err := s.Store.ClaimJob(ctx, jobID, riderID)
	switch {
	case err == nil:
		observability.ClaimsTotal.WithLabelValues("ok").Inc()
		s.Logger.Info("job claimed", "job_id", jobID, "rider_id", riderID)
	case errors.Is(err, storage.ErrJobNotClaimable):
		observability.ClaimsTotal.WithLabelValues("not_claimable").Inc()
	case errors.Is(err, storage.ErrRiderBusy):
		observability.ClaimsTotal.WithLabelValues("rider_busy").Inc()
	case errors.Is(err, storage.ErrNotFound):
		observability.ClaimsTotal.WithLabelValues("not_found").Inc()
	default:
		observability.ClaimsTotal.WithLabelValues("error").Inc()
	}
	return job, err
}

func (s *Service) ConfirmPickup(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	if image == "" {
		return nil, fmt.Errorf("%w: pickup evidence image is required", models.ErrValidation)
	}
	job, err := s.Store.ConfirmPickup(ctx, jobID, riderID, image)
	s.countTransition("pickup", err)
	if err == nil {
		s.Logger.Info("pickup confirmed", "job_id", jobID, "rider_id", riderID)
	}
	return job, err
}

func (s *Service) ConfirmDelivery(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	if image == "" {
		return nil, fmt.Errorf("%w: delivery evidence image is required", models.ErrValidation)
	}
	job, err := s.Store.ConfirmDelivery(ctx, jobID, riderID, image)
	s.countTransition("delivery", err)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("delivery confirmed", "job_id", jobID, "rider_id", riderID)
	s.captureFee(ctx, jobID)
	return job, nil
}

// Override force-sets a job status outside the guarded lifecycle. Every
// call is written to the audit trail by the store and logged at warn level
// here; it exists for operators, not for rider or sender flows.
func (s *Service) Override(ctx context.Context, ov storage.Override) (*models.HydratedJob, error) {
	if ov.Actor == "" || ov.Reason == "" {
		return nil, fmt.Errorf("%w: override requires actor and reason", models.ErrValidation)
	}
	if !ov.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %d", models.ErrValidation, ov.Status)
	}
	job, err := s.Store.OverrideStatus(ctx, ov)
	if err != nil {
		return nil, err
	}
	s.Logger.Warn("status override applied",
		"job_id", ov.JobID, "to_status", ov.Status.String(), "actor", ov.Actor, "reason", ov.Reason)
	if ov.Status == models.StatusOpen {
		s.releaseFee(ctx, ov.JobID)
	}
	return job, nil
}

func (s *Service) Get(ctx context.Context, jobID string) (*models.HydratedJob, error) {
	return s.Store.GetJob(ctx, jobID)
}

func (s *Service) ListByRole(ctx context.Context, role models.ListRole, userID string, minStatus, maxStatus models.JobStatus) ([]models.HydratedJob, error) {
	if !role.Valid() || userID == "" {
		return nil, fmt.Errorf("%w: role and user_id are required", models.ErrValidation)
	}
	if !minStatus.Valid() || !maxStatus.Valid() || minStatus > maxStatus {
		return nil, fmt.Errorf("%w: bad status range", models.ErrValidation)
	}
	return s.Store.ListJobs(ctx, role, userID, minStatus, maxStatus)
}

func (s *Service) ListAvailable(ctx context.Context) ([]models.HydratedJob, error) {
	return s.Store.ListAvailable(ctx)
}

func (s *Service) countTransition(name string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, storage.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	observability.TransitionsTotal.WithLabelValues(name, result).Inc()
}

// Fee handling is best-effort: a payment hiccup never blocks the
// lifecycle, it is logged and moved past.

func (s *Service) holdFee(ctx context.Context, job *models.HydratedJob) {
	if s.Payments == nil || s.FeeAmount <= 0 {
		return
	}
	intentID, err := s.Payments.HoldFee(ctx, s.FeeAmount, s.FeeCurrency, job.SenderID)
	if err != nil {
		s.Logger.Warn("fee hold failed", "job_id", job.ID, "error", err)
		return
	}
	s.mu.Lock()
	s.feeHolds[job.ID] = intentID
	s.mu.Unlock()
}

func (s *Service) captureFee(ctx context.Context, jobID string) {
	intentID, ok := s.takeFeeHold(jobID)
	if !ok {
		return
	}
	if err := s.Payments.CaptureFee(ctx, intentID); err != nil {
		s.Logger.Warn("fee capture failed", "job_id", jobID, "error", err)
	}
}

func (s *Service) releaseFee(ctx context.Context, jobID string) {
	intentID, ok := s.takeFeeHold(jobID)
	if !ok {
		return
	}
	if err := s.Payments.ReleaseFee(ctx, intentID); err != nil {
		s.Logger.Warn("fee release failed", "job_id", jobID, "error", err)
	}
}

func (s *Service) takeFeeHold(jobID string) (string, bool) {
	if s.Payments == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	intentID, ok := s.feeHolds[jobID]
	if ok {
		delete(s.feeHolds, jobID)
	}
	return intentID, ok
}
