package pgdispatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// SLACheck is one row of the worker queue: a case due for re-evaluation.
type SLACheck struct {
	CaseID      uint64
	NextCheckAt time.Time
	FailCount   int32
	LastStatus  *string
}

// EnqueueSLACheck registers a case for periodic SLA evaluation. Re-enqueueing
// an already watched case only moves its next check forward.
func (s *Storage) EnqueueSLACheck(ctx context.Context, caseID uint64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO sla_checks (case_id, next_check_at)
VALUES ($1, $2)
ON CONFLICT (case_id) DO UPDATE SET next_check_at = EXCLUDED.next_check_at, updated_at = now()
`, caseID, at.UTC())
	return errors.Wrap(err, "enqueue sla check")
}

// ClaimDueSLAChecks picks a batch of due cases and leases them so concurrent
// workers do not re-claim in-flight rows. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueSLAChecks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*SLACheck, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT case_id, next_check_at, fail_count, last_status
FROM sla_checks
WHERE next_check_at <= $1
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due sla checks")
	}
	defer rows.Close()

	var picked []*SLACheck
	for rows.Next() {
		var c SLACheck
		if err := rows.Scan(&c.CaseID, &c.NextCheckAt, &c.FailCount, &c.LastStatus); err != nil {
			return nil, errors.Wrap(err, "scan due sla check")
		}
		picked = append(picked, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, c := range picked {
		_, err := tx.Exec(ctx, `UPDATE sla_checks SET next_check_at = $2, updated_at = now() WHERE case_id = $1`, c.CaseID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease sla check")
		}
		c.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// CompleteSLACheck records the evaluation outcome and the next due time.
func (s *Storage) CompleteSLACheck(ctx context.Context, caseID uint64, status *string, next time.Time, failed bool) error {
	var q string
	if failed {
		q = `UPDATE sla_checks SET fail_count = fail_count + 1, next_check_at = $2, updated_at = now() WHERE case_id = $1`
		_, err := s.db.Exec(ctx, q, caseID, next.UTC())
		return errors.Wrap(err, "complete sla check")
	}
	q = `UPDATE sla_checks SET fail_count = 0, last_status = $2, next_check_at = $3, updated_at = now() WHERE case_id = $1`
	_, err := s.db.Exec(ctx, q, caseID, status, next.UTC())
	return errors.Wrap(err, "complete sla check")
}

// DropSLACheck removes a case from the watch queue (closed cases).
func (s *Storage) DropSLACheck(ctx context.Context, caseID uint64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM sla_checks WHERE case_id = $1`, caseID)
	return errors.Wrap(err, "drop sla check")
}
