package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/courier-dispatch/internal/models"
)

func draft() models.JobDraft {
	return models.JobDraft{
		SenderID:          "sender-1",
		SenderAddressID:   "addr-1",
		ReceiverID:        "receiver-1",
		ReceiverAddressID: "addr-2",
		Description:       "envelope",
	}
}

func TestCreateForcesOpenAndNoRider(t *testing.T) {
	s := NewMemoryStore()
	h, err := s.CreateJob(context.Background(), draft())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != models.StatusOpen || h.RiderID != "" {
		t.Fatalf("new job must be open/unassigned, got %s rider=%q", h.StatusName, h.RiderID)
	}
}

func TestConcurrentClaimsOneWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, draft())

	const riders = 16
	results := make([]error, riders)
	var wg sync.WaitGroup
	for i := 0; i < riders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.ClaimJob(ctx, job.ID, riderID(i))
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrJobNotClaimable):
			losses++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 || losses != riders-1 {
		t.Fatalf("want 1 winner and %d rejections, got %d/%d", riders-1, wins, losses)
	}
}

func TestSameRiderCannotHoldTwoJobs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	j1, _ := s.CreateJob(ctx, draft())
	j2, _ := s.CreateJob(ctx, draft())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{j1.ID, j2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = s.ClaimJob(ctx, id, "rider-a")
		}(i, id)
	}
	wg.Wait()

	wins, busy := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRiderBusy):
			busy++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 || busy != 1 {
		t.Fatalf("want exactly one claim and one rider-busy, got %d/%d", wins, busy)
	}
}

func TestPickupOnOpenJobRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, draft())
	_, err := s.ConfirmPickup(ctx, job.ID, "rider-a", "img")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("want invalid transition, got %v", err)
	}
}

func TestTransitionFailureReasons(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, draft())
	if _, err := s.ClaimJob(ctx, job.ID, "rider-a"); err != nil {
		t.Fatal(err)
	}

	var te *TransitionError
	_, err := s.ConfirmPickup(ctx, job.ID, "rider-b", "img")
	if !errors.As(err, &te) || te.Reason != "wrong_rider" {
		t.Fatalf("want wrong_rider, got %v", err)
	}
	_, err = s.ConfirmDelivery(ctx, job.ID, "rider-a", "img")
	if !errors.As(err, &te) || te.Reason != "wrong_status" {
		t.Fatalf("want wrong_status, got %v", err)
	}
	if _, err := s.ConfirmPickup(ctx, "missing", "rider-a", "img"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestFullLifecycleFreesRiderSlot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	j1, _ := s.CreateJob(ctx, draft())
	j2, _ := s.CreateJob(ctx, draft())

	if _, err := s.ClaimJob(ctx, j1.ID, "rider-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimJob(ctx, j1.ID, "rider-b"); !errors.Is(err, ErrJobNotClaimable) {
		t.Fatalf("second claim must fail, got %v", err)
	}
	if _, err := s.ClaimJob(ctx, j2.ID, "rider-a"); !errors.Is(err, ErrRiderBusy) {
		t.Fatalf("rider-a is busy, got %v", err)
	}
	if _, err := s.ConfirmPickup(ctx, j1.ID, "rider-a", "pickup.jpg"); err != nil {
		t.Fatal(err)
	}
	h, err := s.ConfirmDelivery(ctx, j1.ID, "rider-a", "delivery.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != models.StatusDelivered || h.DeliveryImage != "delivery.jpg" {
		t.Fatalf("unexpected delivered job: %+v", h)
	}
	// slot freed, rider-a can take the next job
	if _, err := s.ClaimJob(ctx, j2.ID, "rider-a"); err != nil {
		t.Fatalf("rider-a should be free again: %v", err)
	}
}

func TestRiderNullIffOpenInvariant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, draft())
	check := func() {
		t.Helper()
		h, err := s.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if (h.RiderID == "") != (h.Status == models.StatusOpen) {
			t.Fatalf("invariant broken: status=%s rider=%q", h.StatusName, h.RiderID)
		}
	}
	check()
	s.ClaimJob(ctx, job.ID, "rider-a")
	check()
	s.ConfirmPickup(ctx, job.ID, "rider-a", "img")
	check()
	s.ConfirmDelivery(ctx, job.ID, "rider-a", "img")
	check()
}

func TestOverrideStatusAuditsAndKeepsSlots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	job, _ := s.CreateJob(ctx, draft())
	s.ClaimJob(ctx, job.ID, "rider-a")

	// force the job back to Open: rider cleared, slot freed
	h, err := s.OverrideStatus(ctx, Override{
		JobID: job.ID, Status: models.StatusOpen, Actor: "ops", Reason: "rider unreachable",
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != models.StatusOpen || h.RiderID != "" {
		t.Fatalf("override to open must clear rider, got %+v", h.Job)
	}
	other, _ := s.CreateJob(ctx, draft())
	if _, err := s.ClaimJob(ctx, other.ID, "rider-a"); err != nil {
		t.Fatalf("slot should be free after override: %v", err)
	}

	// forcing an active status onto a riderless job needs an explicit rider
	if _, err := s.OverrideStatus(ctx, Override{
		JobID: job.ID, Status: models.StatusAssigned, Actor: "ops", Reason: "manual assign",
	}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if _, err := s.OverrideStatus(ctx, Override{
		JobID: job.ID, Status: models.StatusAssigned, RiderID: "rider-b", Actor: "ops", Reason: "manual assign",
	}); err != nil {
		t.Fatal(err)
	}

	trail := s.AuditTrail()
	if len(trail) != 2 {
		t.Fatalf("want 2 audit entries, got %d", len(trail))
	}
	if trail[0].Actor != "ops" || trail[0].ToStatus != models.StatusOpen {
		t.Fatalf("unexpected audit entry: %+v", trail[0])
	}
}

func TestOverrideOntoBusyRiderIsPureNoOp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	j1, _ := s.CreateJob(ctx, draft())
	j2, _ := s.CreateJob(ctx, draft())
	j3, _ := s.CreateJob(ctx, draft())
	if _, err := s.ClaimJob(ctx, j1.ID, "rider-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ClaimJob(ctx, j2.ID, "rider-b"); err != nil {
		t.Fatal(err)
	}

	// reassigning j1 onto rider-b must fail: rider-b already holds j2
	_, err := s.OverrideStatus(ctx, Override{
		JobID: j1.ID, Status: models.StatusAssigned, RiderID: "rider-b",
		Actor: "ops", Reason: "reassign",
	})
	if !errors.Is(err, ErrRiderBusy) {
		t.Fatalf("want rider busy, got %v", err)
	}

	// the failed override left j1 exactly as it was
	h, err := s.GetJob(ctx, j1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != models.StatusAssigned || h.RiderID != "rider-a" {
		t.Fatalf("failed override mutated the job: %+v", h.Job)
	}
	// rider-a's active slot survived, so a second claim is still rejected
	if _, err := s.ClaimJob(ctx, j3.ID, "rider-a"); !errors.Is(err, ErrRiderBusy) {
		t.Fatalf("rider-a must still hold j1's slot, got %v", err)
	}
	if len(s.AuditTrail()) != 0 {
		t.Fatalf("failed override must not be audited, got %d entries", len(s.AuditTrail()))
	}
}

func riderID(i int) string { return "rider-" + string(rune('a'+i)) }
