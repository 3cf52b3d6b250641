/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/model"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ErrClaimLost is returned when a worker tries to complete a job whose claim
// has since been taken over by another worker after the lock went stale.
var ErrClaimLost = errors.New("job claim lost to another worker")

const jobColumns = `id, payment_id, status, locked_at, locked_by, attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var lockedAt sql.NullTime
	var lockedBy sql.NullString

	err := row.Scan(
		&job.ID,
		&job.PaymentID,
		&job.Status,
		&lockedAt,
		&lockedBy,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedAt.Valid {
		job.LockedAt = &lockedAt.Time
	}
	if lockedBy.Valid {
		job.LockedBy = &lockedBy.String
	}
	return job, nil
}

// ClaimNextJob claims the oldest pending job, or a processing job whose lock is older
// than lockTimeout. It uses FOR UPDATE SKIP LOCKED so concurrent workers never claim
// the same row. Returns nil, nil when nothing is eligible.
func (d Datasource) ClaimNextJob(ctx context.Context, workerID string, lockTimeout time.Duration) (*model.Job, error) {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Claiming next job")
	defer span.End()

	query := `
		UPDATE recon_jobs
		SET status = $1,
		    locked_at = NOW(),
		    locked_by = $2,
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM recon_jobs
			WHERE status = $3
			   OR (status = $1 AND locked_at < NOW() - ($4::bigint * INTERVAL '1 millisecond'))
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := d.Conn.QueryRowContext(ctx, query,
		model.JobStatusProcessing, workerID, model.JobStatusPending, lockTimeout.Milliseconds())

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim next job", err)
	}

	span.SetAttributes(attribute.String("job.id", job.ID), attribute.Int("job.attempts", job.Attempts))
	return job, nil
}

// MarkJobCompleted moves a processing job to completed. Completing an already
// completed job is a no-op; completing a failed or pending job is logged and ignored.
func (d Datasource) MarkJobCompleted(ctx context.Context, jobID string) error {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Marking job completed")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon_jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, jobID, model.JobStatusCompleted, model.JobStatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job completed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	return d.explainSkippedTransition(ctx, jobID, model.JobStatusCompleted)
}

// MarkJobCompletedInTx completes the job inside the pipeline transaction. The update only
// applies while the caller still holds the claim it was handed, otherwise ErrClaimLost.
func (d Datasource) MarkJobCompletedInTx(ctx context.Context, tx *sql.Tx, claimed *model.Job) error {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Marking job completed in transaction")
	defer span.End()

	var lockedBy string
	if claimed.LockedBy != nil {
		lockedBy = *claimed.LockedBy
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE recon_jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND locked_by = $4 AND attempts = $5
	`, claimed.ID, model.JobStatusCompleted, model.JobStatusProcessing, lockedBy, claimed.Attempts)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job completed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		span.RecordError(ErrClaimLost)
		return ErrClaimLost
	}
	return nil
}

// MarkJobFailed moves a job to failed, adding one attempt when incrementAttempt is set.
// A completed job is never overwritten.
func (d Datasource) MarkJobFailed(ctx context.Context, jobID string, incrementAttempt bool) error {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Marking job failed")
	defer span.End()

	increment := 0
	if incrementAttempt {
		increment = 1
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon_jobs
		SET status = $2, attempts = attempts + $3, updated_at = NOW()
		WHERE id = $1 AND status <> $4
	`, jobID, model.JobStatusFailed, increment, model.JobStatusCompleted)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	return d.explainSkippedTransition(ctx, jobID, model.JobStatusFailed)
}

// MarkClaimedJobFailed fails a job the caller still holds and adds one attempt. It is
// guarded like MarkJobCompletedInTx: when the claim has passed to another worker the row
// is left untouched and ErrClaimLost is returned.
func (d Datasource) MarkClaimedJobFailed(ctx context.Context, claimed *model.Job) error {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Marking claimed job failed")
	defer span.End()

	var lockedBy string
	if claimed.LockedBy != nil {
		lockedBy = *claimed.LockedBy
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon_jobs
		SET status = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3 AND locked_by = $4 AND attempts = $5
	`, claimed.ID, model.JobStatusFailed, model.JobStatusProcessing, lockedBy, claimed.Attempts)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark job failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		span.RecordError(ErrClaimLost)
		return ErrClaimLost
	}
	return nil
}

// explainSkippedTransition is called when a status update matched no rows. It reports
// unknown jobs as not found and logs transitions that the state machine forbids.
func (d Datasource) explainSkippedTransition(ctx context.Context, jobID, target string) error {
	job, err := d.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status == target {
		logrus.Debugf("job %s already %s", jobID, target)
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"job_id": jobID,
		"from":   job.Status,
		"to":     target,
	}).Warn("ignoring illegal job status transition")
	return nil
}

// GetJob retrieves a job by its ID.
func (d Datasource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Fetching job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM recon_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Job with ID '%s' not found", jobID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve job", err)
	}
	return job, nil
}

// EnqueueJob inserts a pending job for the given payment.
func (d Datasource) EnqueueJob(ctx context.Context, paymentID string) (*model.Job, error) {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Enqueueing job")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO recon_jobs (id, payment_id, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		RETURNING `+jobColumns,
		model.GenerateUUIDWithSuffix("job"), paymentID, model.JobStatusPending)

	job, err := scanJob(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Job already exists", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to enqueue job", err)
	}
	return job, nil
}

// ResetFailedJobs returns failed jobs to pending and clears their locks. With no IDs
// every failed job is reset. Returns the number of jobs reset.
func (d Datasource) ResetFailedJobs(ctx context.Context, jobIDs []string) (int64, error) {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Resetting failed jobs")
	defer span.End()

	query := `
		UPDATE recon_jobs
		SET status = $1, locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE status = $2`
	args := []any{model.JobStatusPending, model.JobStatusFailed}
	if len(jobIDs) > 0 {
		query += ` AND id = ANY($3)`
		args = append(args, pq.Array(jobIDs))
	}

	result, err := d.Conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset failed jobs", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	span.SetAttributes(attribute.Int64("jobs.reset", rowsAffected))
	return rowsAffected, nil
}

// CountJobsByStatus counts jobs grouped by status.
func (d Datasource) CountJobsByStatus(ctx context.Context) ([]model.JobStatusCount, error) {
	ctx, span := otel.Tracer("Job Store").Start(ctx, "Counting jobs by status")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM recon_jobs GROUP BY status ORDER BY status
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count jobs", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []model.JobStatusCount
	for rows.Next() {
		var count model.JobStatusCount
		if err := rows.Scan(&count.Status, &count.Count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan job count", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate job counts", err)
	}
	return counts, nil
}
