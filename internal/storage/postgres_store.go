package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/courier-dispatch/internal/models"
)

const (
	uniqueViolation = "23505"
	fkViolation     = "23503"
)

// PostgresStore backs the JobStore with postgres. Claim safety relies on
// two store-level mechanisms inside one transaction: the conditional
// UPDATE keyed on the current Open/unassigned state, and the primary key
// on rider_active_jobs(rider_id) which makes a second concurrent claim by
// the same rider fail at commit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const hydrateSelect = `
SELECT j.id, j.sender_id, j.sender_address_id, j.receiver_id, j.receiver_address_id,
       j.description, COALESCE(j.product_image,''), COALESCE(j.pickup_image,''), COALESCE(j.delivery_image,''),
       j.status, COALESCE(j.rider_id,''), j.created_at, j.updated_at,
       s.display_name, r.display_name, COALESCE(rd.display_name,''),
       sa.id, COALESCE(sa.label,''), sa.detail, sa.lat, sa.lng,
       ra.id, COALESCE(ra.label,''), ra.detail, ra.lat, ra.lng
FROM jobs j
JOIN users s ON s.id = j.sender_id
JOIN users r ON r.id = j.receiver_id
LEFT JOIN users rd ON rd.id = j.rider_id
JOIN addresses sa ON sa.id = j.sender_address_id
JOIN addresses ra ON ra.id = j.receiver_address_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHydrated(rs rowScanner) (*models.HydratedJob, error) {
	var h models.HydratedJob
	err := rs.Scan(
		&h.ID, &h.SenderID, &h.SenderAddressID, &h.ReceiverID, &h.ReceiverAddressID,
		&h.Description, &h.ProductImage, &h.PickupImage, &h.DeliveryImage,
		&h.Status, &h.RiderID, &h.CreatedAt, &h.UpdatedAt,
		&h.SenderName, &h.ReceiverName, &h.RiderName,
		&h.SenderAddress.ID, &h.SenderAddress.Label, &h.SenderAddress.Detail, &h.SenderAddress.Lat, &h.SenderAddress.Lng,
		&h.ReceiverAddress.ID, &h.ReceiverAddress.Label, &h.ReceiverAddress.Detail, &h.ReceiverAddress.Lat, &h.ReceiverAddress.Lng,
	)
	if err != nil {
		return nil, err
	}
	h.StatusName = h.Status.String()
	return &h, nil
}

func (p *PostgresStore) hydrate(ctx context.Context, id string) (*models.HydratedJob, error) {
	h, err := scanHydrated(p.db.QueryRowContext(ctx, hydrateSelect+` WHERE j.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return h, nil
}

func (p *PostgresStore) CreateJob(ctx context.Context, draft models.JobDraft) (*models.HydratedJob, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO jobs (id, sender_id, sender_address_id, receiver_id, receiver_address_id,
		                   description, product_image, status, rider_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULL,$9,$9)`,
		id, draft.SenderID, draft.SenderAddressID, draft.ReceiverID, draft.ReceiverAddressID,
		draft.Description, draft.ProductImage, models.StatusOpen, now)
	if err != nil {
		return nil, storeErr(err)
	}
	return p.hydrate(ctx, id)
}

func (p *PostgresStore) GetJob(ctx context.Context, id string) (*models.HydratedJob, error) {
	return p.hydrate(ctx, id)
}

func (p *PostgresStore) ListJobs(ctx context.Context, role models.ListRole, userID string, minStatus, maxStatus models.JobStatus) ([]models.HydratedJob, error) {
	var col string
	switch role {
	case models.RoleSender:
		col = "j.sender_id"
	case models.RoleReceiver:
		col = "j.receiver_id"
	case models.RoleRider:
		col = "j.rider_id"
	default:
		return nil, models.ErrValidation
	}
	rows, err := p.db.QueryContext(ctx,
		hydrateSelect+` WHERE `+col+` = $1 AND j.status BETWEEN $2 AND $3 ORDER BY j.created_at DESC`,
		userID, minStatus, maxStatus)
	if err != nil {
		return nil, storeErr(err)
	}
	return collect(rows)
}

func (p *PostgresStore) ListAvailable(ctx context.Context) ([]models.HydratedJob, error) {
	rows, err := p.db.QueryContext(ctx,
		hydrateSelect+` WHERE j.status = $1 AND j.rider_id IS NULL ORDER BY j.created_at`,
		models.StatusOpen)
	if err != nil {
		return nil, storeErr(err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]models.HydratedJob, error) {
	defer rows.Close()
	out := []models.HydratedJob{}
	for rows.Next() {
		h, err := scanHydrated(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func (p *PostgresStore) ClaimJob(ctx context.Context, jobID, riderID string) (*models.HydratedJob, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	defer tx.Rollback()

	// Occupy the rider's single active slot first. The PK on rider_id
	// turns a concurrent second claim by the same rider into a unique
	// violation instead of a check-then-act race.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rider_active_jobs (rider_id, job_id) VALUES ($1, $2)`,
		riderID, jobID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch string(pqErr.Code) {
			case uniqueViolation:
				return nil, ErrRiderBusy
			case fkViolation:
				// unknown rider or job
				return nil, ErrNotFound
			}
		}
		return nil, storeErr(err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET rider_id = $1, status = $2, updated_at = $3
		 WHERE id = $4 AND status = $5 AND rider_id IS NULL`,
		riderID, models.StatusAssigned, time.Now().UTC(), jobID, models.StatusOpen)
	if err != nil {
		return nil, storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID).Scan(&exists); err != nil {
			return nil, storeErr(err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrJobNotClaimable
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, ErrRiderBusy
		}
		return nil, storeErr(err)
	}
	return p.hydrate(ctx, jobID)
}

func (p *PostgresStore) ConfirmPickup(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, pickup_image = $2, updated_at = $3
		 WHERE id = $4 AND rider_id = $5 AND status = $6`,
		models.StatusPickedUp, image, time.Now().UTC(), jobID, riderID, models.StatusAssigned)
	if err != nil {
		return nil, storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, p.classifyTransitionFailure(ctx, jobID, riderID)
	}
	return p.hydrate(ctx, jobID)
}

func (p *PostgresStore) ConfirmDelivery(ctx context.Context, jobID, riderID, image string) (*models.HydratedJob, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, delivery_image = $2, updated_at = $3
		 WHERE id = $4 AND rider_id = $5 AND status = $6`,
		models.StatusDelivered, image, time.Now().UTC(), jobID, riderID, models.StatusPickedUp)
	if err != nil {
		return nil, storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, p.classifyTransitionFailure(ctx, jobID, riderID)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rider_active_jobs WHERE rider_id = $1 AND job_id = $2`,
		riderID, jobID); err != nil {
		return nil, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err)
	}
	return p.hydrate(ctx, jobID)
}

// classifyTransitionFailure explains a conditional write that matched zero
// rows. The read is advisory: the write already failed atomically.
func (p *PostgresStore) classifyTransitionFailure(ctx context.Context, jobID, riderID string) error {
	var rider sql.NullString
	var status models.JobStatus
	err := p.db.QueryRowContext(ctx,
		`SELECT rider_id, status FROM jobs WHERE id = $1`, jobID).Scan(&rider, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr(err)
	}
	if rider.String != riderID {
		return wrongRider()
	}
	return wrongStatus()
}

func (p *PostgresStore) OverrideStatus(ctx context.Context, ov Override) (*models.HydratedJob, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	defer tx.Rollback()

	var curRider sql.NullString
	var curStatus models.JobStatus
	err = tx.QueryRowContext(ctx,
		`SELECT rider_id, status FROM jobs WHERE id = $1 FOR UPDATE`, ov.JobID).
		Scan(&curRider, &curStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	newRider, err := overrideRider(ov, curRider.String)
	if err != nil {
		return nil, err
	}

	// Keep slot bookkeeping consistent with the forced status.
	if curStatus.Active() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rider_active_jobs WHERE job_id = $1`, ov.JobID); err != nil {
			return nil, storeErr(err)
		}
	}
	if ov.Status.Active() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rider_active_jobs (rider_id, job_id) VALUES ($1, $2)`,
			newRider, ov.JobID); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return nil, ErrRiderBusy
			}
			return nil, storeErr(err)
		}
	}

	riderVal := sql.NullString{String: newRider, Valid: newRider != ""}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, rider_id = $2, updated_at = $3 WHERE id = $4`,
		ov.Status, riderVal, time.Now().UTC(), ov.JobID); err != nil {
		return nil, storeErr(err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_status_audit (job_id, from_status, to_status, actor, reason, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		ov.JobID, curStatus, ov.Status, ov.Actor, ov.Reason, time.Now().UTC()); err != nil {
		return nil, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err)
	}
	return p.hydrate(ctx, ov.JobID)
}

// overrideRider resolves the rider that a forced status implies, keeping
// the rider-iff-not-Open invariant intact.
func overrideRider(ov Override, current string) (string, error) {
	if !ov.Status.Valid() {
		return "", models.ErrValidation
	}
	if ov.Status == models.StatusOpen {
		return "", nil
	}
	if ov.RiderID != "" {
		return ov.RiderID, nil
	}
	if current == "" {
		// rider_id is null exactly while Open; any other status needs a holder
		return "", models.ErrValidation
	}
	return current, nil
}
