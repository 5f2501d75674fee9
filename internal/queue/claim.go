package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimLimits bounds how much work the scheduler may hold at once.
type ClaimLimits struct {
	// MaxInFlight caps the number of live leases across all repositories.
	MaxInFlight int
	// LeaseDuration is how long a fresh lease remains valid without a heartbeat.
	LeaseDuration time.Duration
}

// ClaimNext atomically claims the next eligible job for the given worker, or
// returns (nil, nil) when nothing is claimable. Eligibility means: the job sits
// at a work stage, its retry delay (if any) has elapsed, it holds no live
// lease, no other job in its repository holds a live lease, and it is the
// oldest claimable job of its repository. The global in-flight cap applies
// before any candidate is considered.
//
// The claim is a single UPDATE with a sub-select, so concurrent workers on the
// same database can never claim the same job twice.
func (s *Store) ClaimNext(ctx context.Context, workerID string, limits ClaimLimits, now time.Time) (*Job, error) {
	if workerID == "" {
		return nil, errors.New("worker id is empty")
	}
	if limits.MaxInFlight <= 0 || limits.LeaseDuration <= 0 {
		return nil, fmt.Errorf("invalid claim limits: max_in_flight=%d lease=%s", limits.MaxInFlight, limits.LeaseDuration)
	}

	nowStr := now.UTC().Format(time.RFC3339Nano)
	expires := now.UTC().Add(limits.LeaseDuration).Format(time.RFC3339Nano)

	row := s.db.QueryRowContext(
		ctx,
		`UPDATE jobs
         SET lease_owner = ?1, lease_expires = ?2, updated_at = ?3, version = version + 1
         WHERE id = (
             SELECT j.id FROM jobs j
             WHERE j.stage IN ('collecting', 'scripting', 'rendering', 'publishing')
               AND (j.next_retry_at IS NULL OR j.next_retry_at <= ?3)
               AND (j.lease_expires IS NULL OR j.lease_expires <= ?3)
               AND (SELECT COUNT(1) FROM jobs live
                    WHERE live.lease_expires IS NOT NULL AND live.lease_expires > ?3) < ?4
               AND NOT EXISTS (
                   SELECT 1 FROM jobs held
                   WHERE held.repo = j.repo AND held.id <> j.id
                     AND held.lease_expires IS NOT NULL AND held.lease_expires > ?3)
               AND NOT EXISTS (
                   SELECT 1 FROM jobs ahead
                   WHERE ahead.repo = j.repo AND ahead.id <> j.id
                     AND ahead.stage IN ('collecting', 'scripting', 'rendering', 'publishing')
                     AND (ahead.created_at < j.created_at
                          OR (ahead.created_at = j.created_at AND ahead.id < j.id)))
             ORDER BY j.created_at, j.id
             LIMIT 1
         )
         RETURNING id`,
		workerID,
		expires,
		nowStr,
		limits.MaxInFlight,
	)

	var claimedID string
	if err := row.Scan(&claimedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	job, err := s.GetByID(ctx, claimedID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: claimed job %s vanished", ErrNotFound, claimedID)
	}
	return job, nil
}

// ExtendLease pushes the lease expiry forward for a job the worker still owns.
// The update is guarded by the owner, not the version: a heartbeat must not
// invalidate the executing worker's observed version. Returns false when the
// lease is no longer held by this worker.
func (s *Store) ExtendLease(ctx context.Context, jobID, workerID string, until time.Time) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET lease_expires = ?
         WHERE id = ? AND lease_owner = ? AND lease_expires IS NOT NULL`,
		until.UTC().Format(time.RFC3339Nano),
		jobID,
		workerID,
	)
	if err != nil {
		return false, fmt.Errorf("extend lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseLease drops the worker's lease without touching any other job state.
// Releasing a lease someone else holds is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, jobID, workerID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET lease_owner = NULL, lease_expires = NULL
         WHERE id = ? AND lease_owner = ?`,
		jobID,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases clears lease fields on jobs whose lease lapsed without
// a release, typically after a crash. Cleared jobs become claimable again with
// whatever stage and attempt state they last persisted.
func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET lease_owner = NULL, lease_expires = NULL
         WHERE lease_expires IS NOT NULL AND lease_expires <= ?
           AND stage IN ('collecting', 'scripting', 'rendering', 'publishing')`,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}
