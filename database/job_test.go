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
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jobRowColumns = []string{"id", "payment_id", "status", "locked_at", "locked_by", "attempts", "created_at", "updated_at"}

func TestClaimNextJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery("UPDATE recon_jobs").
		WithArgs(model.JobStatusProcessing, "worker-1", model.JobStatusPending, int64(30000)).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "pay-1", model.JobStatusProcessing, now, "worker-1", 1, now.Add(-time.Minute), now))

	job, err := ds.ClaimNextJob(context.Background(), "worker-1", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "pay-1", job.PaymentID)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.LockedBy)
	assert.Equal(t, "worker-1", *job.LockedBy)
	require.NotNil(t, job.LockedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJob_NothingEligible(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE recon_jobs").
		WithArgs(model.JobStatusProcessing, "worker-1", model.JobStatusPending, int64(30000)).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	job, err := ds.ClaimNextJob(context.Background(), "worker-1", 30*time.Second)
	assert.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJob_UsesSkipLocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(`ORDER BY created_at ASC\s+LIMIT 1\s+FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err = ds.ClaimNextJob(context.Background(), "worker-1", time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJob_ReclaimsStaleProcessingJobs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery(`SET status = \$1,\s+locked_at = NOW\(\),\s+locked_by = \$2,\s+attempts = attempts \+ 1`+
		`(?s:.+)WHERE status = \$3\s+OR \(status = \$1 AND locked_at < NOW\(\) - \(\$4::bigint \* INTERVAL '1 millisecond'\)\)`).
		WithArgs(model.JobStatusProcessing, "worker-2", model.JobStatusPending, int64(30000)).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "pay-1", model.JobStatusProcessing, now, "worker-2", 2, now.Add(-time.Hour), now))

	job, err := ds.ClaimNextJob(context.Background(), "worker-2", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, "worker-2", *job.LockedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextJob_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE recon_jobs").WillReturnError(errors.New("connection reset"))

	job, err := ds.ClaimNextJob(context.Background(), "worker-1", time.Second)
	assert.Nil(t, job)
	assert.True(t, apierror.HasCode(err, apierror.ErrInternalServer))
}

func TestMarkJobCompleted_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusCompleted, model.JobStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.MarkJobCompleted(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobCompleted_AlreadyCompletedIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusCompleted, model.JobStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recon_jobs WHERE id = ").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "pay-1", model.JobStatusCompleted, now, "worker-1", 1, now, now))

	assert.NoError(t, ds.MarkJobCompleted(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobCompleted_FailedJobIsLeftFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec("UPDATE recon_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recon_jobs WHERE id = ").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "pay-1", model.JobStatusFailed, nil, nil, 2, now, now))

	assert.NoError(t, ds.MarkJobCompleted(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobCompleted_UnknownJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon_jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recon_jobs WHERE id = ").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err = ds.MarkJobCompleted(context.Background(), "missing")
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestMarkJobCompletedInTx_GuardedByClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	worker := "worker-1"
	claimed := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, LockedBy: &worker, Attempts: 2}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusCompleted, model.JobStatusProcessing, worker, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, ds.MarkJobCompletedInTx(context.Background(), tx, claimed))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobCompletedInTx_ClaimLost(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	worker := "worker-1"
	claimed := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, LockedBy: &worker, Attempts: 1}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusCompleted, model.JobStatusProcessing, worker, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = ds.MarkJobCompletedInTx(context.Background(), tx, claimed)
	assert.ErrorIs(t, err, ErrClaimLost)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobFailed_IncrementsAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusFailed, 1, model.JobStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.MarkJobFailed(context.Background(), "job-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobFailed_WithoutIncrement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusFailed, 0, model.JobStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.MarkJobFailed(context.Background(), "job-1", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkJobFailed_NeverOverwritesCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectExec(`WHERE id = \$1 AND status <> \$4`).
		WithArgs("job-1", model.JobStatusFailed, 1, model.JobStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM recon_jobs WHERE id = ").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-1", "pay-1", model.JobStatusCompleted, now, "worker-1", 1, now, now))

	assert.NoError(t, ds.MarkJobFailed(context.Background(), "job-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkClaimedJobFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	worker := "worker-1"
	claimed := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, LockedBy: &worker, Attempts: 1}

	mock.ExpectExec(`SET status = \$2, attempts = attempts \+ 1(?s:.+)WHERE id = \$1 AND status = \$3 AND locked_by = \$4 AND attempts = \$5`).
		WithArgs("job-1", model.JobStatusFailed, model.JobStatusProcessing, "worker-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.MarkClaimedJobFailed(context.Background(), claimed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkClaimedJobFailed_ReclaimedByAnotherWorker(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	worker := "worker-1"
	claimed := &model.Job{ID: "job-1", Status: model.JobStatusProcessing, LockedBy: &worker, Attempts: 1}

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs("job-1", model.JobStatusFailed, model.JobStatusProcessing, "worker-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.MarkClaimedJobFailed(context.Background(), claimed)
	assert.ErrorIs(t, err, ErrClaimLost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT (.+) FROM recon_jobs WHERE id = ").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	job, err := ds.GetJob(context.Background(), "missing")
	assert.Nil(t, job)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestEnqueueJob_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery("INSERT INTO recon_jobs").
		WithArgs(sqlmock.AnyArg(), "pay-1", model.JobStatusPending).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job-new", "pay-1", model.JobStatusPending, nil, nil, 0, now, now))

	job, err := ds.EnqueueJob(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "job-new", job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Zero(t, job.Attempts)
	assert.Nil(t, job.LockedAt)
	assert.Nil(t, job.LockedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type prefixedID string

func (p prefixedID) Match(v driver.Value) bool {
	id, ok := v.(string)
	return ok && strings.HasPrefix(id, string(p)) && len(id) > len(p)
}

func TestEnqueueJob_GeneratesPrefixedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery("INSERT INTO recon_jobs").
		WithArgs(prefixedID("job_"), "pay-1", model.JobStatusPending).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).
			AddRow("job_1", "pay-1", model.JobStatusPending, nil, nil, 0, now, now))

	_, err = ds.EnqueueJob(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueJob_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("INSERT INTO recon_jobs").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.EnqueueJob(context.Background(), "pay-1")
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
}

func TestResetFailedJobs_All(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE recon_jobs").
		WithArgs(model.JobStatusPending, model.JobStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 3))

	reset, err := ds.ResetFailedJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetFailedJobs_ByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec(`AND id = ANY\(\$3\)`).
		WithArgs(model.JobStatusPending, model.JobStatusFailed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	reset, err := ds.ResetFailedJobs(context.Background(), []string{"job-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountJobsByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(model.JobStatusCompleted, 7).
			AddRow(model.JobStatusPending, 2))

	counts, err := ds.CountJobsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.JobStatusCount{
		{Status: model.JobStatusCompleted, Count: 7},
		{Status: model.JobStatusPending, Count: 2},
	}, counts)
}
