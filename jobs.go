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

package recon

import (
	"context"
	"time"

	"github.com/jerry-enebeli/recon/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const (
	jobCountsCacheKey = "recon:health:job-counts"
	jobCountsCacheTTL = 5 * time.Second
)

// AccountLedger is an account's ledger page together with the result of replaying it.
type AccountLedger struct {
	AccountID  string              `json:"account_id"`
	Entries    []model.LedgerEntry `json:"entries"`
	Consistent bool                `json:"consistent"`
	Error      string              `json:"error,omitempty"`
}

// JobDetails is a job as seen by an operator. Stale is set when a processing job's lock
// has outlived the lock timeout and any worker may reclaim it.
type JobDetails struct {
	*model.Job
	Terminal bool `json:"terminal"`
	Stale    bool `json:"stale"`
}

// Health summarizes the store and the job queue.
type Health struct {
	WorkerID string                 `json:"worker_id"`
	Jobs     []model.JobStatusCount `json:"jobs"`
}

// EnqueueJob queues a reconciliation job for an existing payment.
func (r *Recon) EnqueueJob(ctx context.Context, paymentID string) (*model.Job, error) {
	ctx, span := otel.Tracer("Recon").Start(ctx, "Enqueueing reconciliation job")
	defer span.End()

	if _, err := r.datasource.GetPaymentByID(ctx, paymentID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	job, err := r.datasource.EnqueueJob(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	r.invalidateJobCounts(ctx)
	return job, nil
}

// RetryFailedJobs moves failed jobs back to pending so the poller claims them again.
// With no IDs every failed job is retried.
func (r *Recon) RetryFailedJobs(ctx context.Context, jobIDs []string) (int64, error) {
	ctx, span := otel.Tracer("Recon").Start(ctx, "Retrying failed jobs")
	defer span.End()

	reset, err := r.datasource.ResetFailedJobs(ctx, jobIDs)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		r.invalidateJobCounts(ctx)
	}
	return reset, nil
}

// GetJob retrieves a job by ID and reports whether it is settled or awaiting reclaim.
func (r *Recon) GetJob(ctx context.Context, jobID string) (*JobDetails, error) {
	job, err := r.datasource.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobDetails{
		Job:      job,
		Terminal: job.IsTerminal(),
		Stale:    job.IsStale(time.Now(), r.lockTimeout),
	}, nil
}

// GetJobResults returns the reconciliation results recorded for a job.
func (r *Recon) GetJobResults(ctx context.Context, jobID string) ([]model.ReconciliationResult, error) {
	if _, err := r.datasource.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return r.datasource.GetReconciliationResultsByJobID(ctx, jobID)
}

// GetAccountLedger returns a page of the account's ledger. Consistency is only checked
// when the page starts at the first entry, since replay begins from a zero balance.
func (r *Recon) GetAccountLedger(ctx context.Context, accountID string, limit, offset int) (*AccountLedger, error) {
	ctx, span := otel.Tracer("Recon").Start(ctx, "Fetching account ledger")
	defer span.End()

	entries, err := r.datasource.GetLedgerEntries(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}

	ledger := &AccountLedger{AccountID: accountID, Entries: entries, Consistent: true}
	if offset == 0 {
		if err := model.VerifyLedger(entries); err != nil {
			ledger.Consistent = false
			ledger.Error = err.Error()
		}
	}
	return ledger, nil
}

// Health pings the store and counts jobs by status. Counts are cached briefly when a
// cache is configured; the ping always hits the store.
func (r *Recon) Health(ctx context.Context) (*Health, error) {
	if err := r.datasource.Ping(ctx); err != nil {
		return nil, err
	}

	if r.cache != nil {
		var cached []model.JobStatusCount
		found, err := r.cache.Get(ctx, jobCountsCacheKey, &cached)
		if err != nil {
			logrus.Warnf("failed to read cached job counts: %v", err)
		} else if found {
			return &Health{WorkerID: r.workerID, Jobs: cached}, nil
		}
	}

	counts, err := r.datasource.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, jobCountsCacheKey, counts, jobCountsCacheTTL); err != nil {
			logrus.Warnf("failed to cache job counts: %v", err)
		}
	}
	return &Health{WorkerID: r.workerID, Jobs: counts}, nil
}

func (r *Recon) invalidateJobCounts(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, jobCountsCacheKey); err != nil {
		logrus.Warnf("failed to invalidate cached job counts: %v", err)
	}
}
