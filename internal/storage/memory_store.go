package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/courier-dispatch/internal/models"
)

// MemoryStore is an in-process JobStore with the same transition semantics
// as PostgresStore. One mutex serializes every mutation, so each claim or
// confirmation is atomic with respect to all others. Used when PG_DSN is
// unset and throughout the tests.
type MemoryStore struct {
	mu            sync.RWMutex
	jobs          map[string]*models.Job
	activeByRider map[string]string // riderID -> jobID holding the slot
	users         map[string]string // id -> display name
	addresses     map[string]models.Address
	audit         []AuditEntry
}

// AuditEntry mirrors one job_status_audit row.
type AuditEntry struct {
	JobID      string
	FromStatus models.JobStatus
	ToStatus   models.JobStatus
	Actor      string
	Reason     string
	At         time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:          make(map[string]*models.Job),
		activeByRider: make(map[string]string),
		users:         make(map[string]string),
		addresses:     make(map[string]models.Address),
	}
}

// SeedUser and SeedAddress register directory data the hydrated reads join
// against. Unknown ids hydrate to empty names rather than failing; the
// directory is owned by the out-of-scope account service.
func (m *MemoryStore) SeedUser(id, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = displayName
}

func (m *MemoryStore) SeedAddress(a models.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[a.ID] = a
}

func (m *MemoryStore) hydrateLocked(j *models.Job) *models.HydratedJob {
	h := &models.HydratedJob{Job: *j}
	h.StatusName = h.Status.String()
	h.SenderName = m.users[j.SenderID]
	h.ReceiverName = m.users[j.ReceiverID]
	if j.RiderID != "" {
		h.RiderName = m.users[j.RiderID]
	}
	h.SenderAddress = m.addresses[j.SenderAddressID]
	h.ReceiverAddress = m.addresses[j.ReceiverAddressID]
	if h.SenderAddress.ID == "" {
		h.SenderAddress.ID = j.SenderAddressID
	}
	if h.ReceiverAddress.ID == "" {
		h.ReceiverAddress.ID = j.ReceiverAddressID
	}
	return h
}

func (m *MemoryStore) CreateJob(ctx context.Context, draft models.JobDraft) (*models.HydratedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	j := &models.Job{
		ID:                uuid.NewString(),
		SenderID:          draft.SenderID,
		SenderAddressID:   draft.SenderAddressID,
		ReceiverID:        draft.ReceiverID,
		ReceiverAddressID: draft.ReceiverAddressID,
		Description:       draft.Description,
		ProductImage:      draft.ProductImage,
		Status:            models.StatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.jobs[j.ID] = j
	return m.hydrateLocked(j), nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (*models.HydratedJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.hydrateLocked(j), nil
}

func (m *MemoryStore) ListJobs(ctx context.Context, role models.ListRole, userID string, minStatus, maxStatus models.JobStatus) ([]models.HydratedJob, error) {
	if !role.Valid() {
		return nil, models.ErrValidation
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.HydratedJob{}
	for _, j := range m.jobs {
		var owner string
		switch role {
		case models.RoleSender:
			owner = j.SenderID
		case models.RoleReceiver:
			owner = j.ReceiverID
		case models.RoleRider:
			owner = j.RiderID
		}
		if owner != userID || j.Status < minStatus || j.Status > maxStatus {
			continue
		}
		out = append(out, *m.hydrateLocked(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListAvailable(ctx context.Context) ([]models.HydratedJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.HydratedJob{}
	for _, j := range m.jobs {
		if j.Status == models.StatusOpen && j.RiderID == "" {
			out = append(out, *m.hydrateLocked(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ClaimJob(ctx context.Context, jobID, riderID string) (*models.HydratedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	// Both preconditions are checked and enacted under the one lock, the
	// in-memory equivalent of the single postgres transaction.
	if _, busy := m.activeByRider[riderID]; busy {
		return nil, ErrRiderBusy
	}
	if j.Status != models.StatusOpen || j.RiderID != "" {
		return nil, ErrJobNotClaimable
	}
	j.Status = models.StatusAssigned
	j.RiderID = riderID
	j.UpdatedAt = time.Now().UTC()
	m.activeByRider[riderID] = jobID
	return m.hydrateLocked(j), nil
}

func (m *MemoryStore) ConfirmPickup(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.RiderID != riderID {
		return nil, wrongRider()
	}
	if j.Status != models.StatusAssigned {
		return nil, wrongStatus()
	}
	j.Status = models.StatusPickedUp
	j.PickupImage = image
	j.UpdatedAt = time.Now().UTC()
	return m.hydrateLocked(j), nil
}

func (m *MemoryStore) ConfirmDelivery(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.RiderID != riderID {
		return nil, wrongRider()
	}
	if j.Status != models.StatusPickedUp {
		return nil, wrongStatus()
	}
	j.Status = models.StatusDelivered
	j.DeliveryImage = image
	j.UpdatedAt = time.Now().UTC()
	delete(m.activeByRider, riderID)
	return m.hydrateLocked(j), nil
}

func (m *MemoryStore) OverrideStatus(ctx context.Context, ov Override) (*models.HydratedJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[ov.JobID]
	if !ok {
		return nil, ErrNotFound
	}
	newRider, err := overrideRider(ov, j.RiderID)
	if err != nil {
		return nil, err
	}
	// The busy check comes before any slot mutation so a rejected
	// override leaves the current holder's slot untouched.
	if ov.Status.Active() {
		if held, busy := m.activeByRider[newRider]; busy && held != ov.JobID {
			return nil, ErrRiderBusy
		}
	}
	if j.Status.Active() {
		delete(m.activeByRider, j.RiderID)
	}
	if ov.Status.Active() {
		m.activeByRider[newRider] = ov.JobID
	}
	m.audit = append(m.audit, AuditEntry{
		JobID:      ov.JobID,
		FromStatus: j.Status,
		ToStatus:   ov.Status,
		Actor:      ov.Actor,
		Reason:     ov.Reason,
		At:         time.Now().UTC(),
	})
	j.Status = ov.Status
	j.RiderID = newRider
	j.UpdatedAt = time.Now().UTC()
	return m.hydrateLocked(j), nil
}

// AuditTrail returns a copy of the recorded overrides, oldest first.
func (m *MemoryStore) AuditTrail() []AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
