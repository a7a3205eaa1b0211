package storage

import (
	"context"

	"github.com/example/courier-dispatch/internal/models"
)

// JobStore defines persistence for delivery jobs. Claim and the two
// lifecycle confirmations are atomic conditional writes: a failed call is a
// pure no-op, and two concurrent calls can never both satisfy the same
// precondition.
type JobStore interface {
	// CreateJob persists a new job with status Open and no rider,
	// regardless of anything the draft might claim.
	CreateJob(ctx context.Context, draft models.JobDraft) (*models.HydratedJob, error)

	GetJob(ctx context.Context, id string) (*models.HydratedJob, error)

	// ListJobs returns jobs where the user plays the given role, with
	// status in [minStatus, maxStatus].
	ListJobs(ctx context.Context, role models.ListRole, userID string, minStatus, maxStatus models.JobStatus) ([]models.HydratedJob, error)

	// ListAvailable returns Open, unassigned jobs.
	ListAvailable(ctx context.Context) ([]models.HydratedJob, error)

	// ClaimJob atomically moves an Open, unassigned job to Assigned under
	// riderID. Fails with ErrJobNotClaimable if the job is not Open, with
	// ErrRiderBusy if the rider already holds an Assigned/PickedUp job.
	ClaimJob(ctx context.Context, jobID, riderID string) (*models.HydratedJob, error)

	// ConfirmPickup moves Assigned -> PickedUp, guarded on the holder,
	// recording the pickup evidence image.
	ConfirmPickup(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error)

	// ConfirmDelivery moves PickedUp -> Delivered, guarded on the holder,
	// recording the delivery evidence image and freeing the rider's
	// active-job slot.
	ConfirmDelivery(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error)

	// OverrideStatus force-sets a job's status outside the forward-only
	// lifecycle. The rider slot bookkeeping and the rider/Open invariant
	// are preserved; every call is recorded in the audit trail.
	OverrideStatus(ctx context.Context, ov Override) (*models.HydratedJob, error)
}

// Override is an audited administrative status change.
type Override struct {
	JobID   string           `json:"job_id"`
	Status  models.JobStatus `json:"status"`
	RiderID string           `json:"rider_id,omitempty"` // required when forcing Assigned/PickedUp onto a riderless job
	Actor   string           `json:"actor"`
	Reason  string           `json:"reason"`
}
