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
	"database/sql"
	"fmt"

	"github.com/jerry-enebeli/recon/database"
	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/internal/hooks"
	"github.com/jerry-enebeli/recon/internal/notification"
	"github.com/jerry-enebeli/recon/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProcessJob runs one claimed job through the pipeline: load the payment, apply the rules,
// then write the result, payment status, ledger entry and job completion in a single
// transaction. Every failure is converted into a job status change; the returned error
// only reports what happened and never needs handling by the caller.
//
// The work runs detached from ctx cancellation so a shutdown never aborts a transaction
// midway and leaves the job stuck in processing.
func (r *Recon) ProcessJob(ctx context.Context, job *model.Job) (err error) {
	ctx, span := otel.Tracer("Recon Pipeline").Start(context.WithoutCancel(ctx), "Processing job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("payment.id", job.PaymentID),
		attribute.Int("job.attempts", job.Attempts),
	)

	log := logrus.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"payment_id": job.PaymentID,
		"worker_id":  r.workerID,
	})
	log.Info("processing job")

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing job %s: %v", job.ID, p)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			r.failJob(ctx, job, err, log)
		}
	}()

	payment, err := r.datasource.GetPaymentByID(ctx, job.PaymentID)
	if err != nil {
		span.RecordError(err)
		if apierror.HasCode(err, apierror.ErrNotFound) {
			log.Errorf("payment %s not found", job.PaymentID)
			if markErr := r.datasource.MarkJobFailed(ctx, job.ID, false); markErr != nil {
				log.Errorf("failed to mark job failed: %v", markErr)
			} else {
				r.fireHooks(ctx, hooks.JobFailed, JobOutcome{JobID: job.ID, PaymentID: job.PaymentID, Status: model.JobStatusFailed, Error: err.Error()})
			}
			return errors.Wrap(err, "load payment")
		}
		// Nothing was written; the claim ages out and the job is reclaimed.
		log.Errorf("failed to load payment: %v", err)
		return errors.Wrap(err, "load payment")
	}

	result := r.rules(*payment)
	result.PaymentID = payment.ID
	result.JobID = job.ID
	span.SetAttributes(attribute.String("recon.status", result.Status), attribute.Bool("recon.matched", result.Matched))

	err = r.commitOutcome(ctx, job, payment, &result)
	switch {
	case err == nil:
		log.WithField("status", result.Status).Info("job completed")
		r.fireHooks(ctx, hooks.JobCompleted, JobOutcome{JobID: job.ID, PaymentID: job.PaymentID, Status: model.JobStatusCompleted, Result: &result})
		return nil
	case errors.Is(err, database.ErrClaimLost):
		log.Warn("claim was taken over by another worker, transaction rolled back")
		return err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		r.failJob(ctx, job, err, log)
		return err
	}
}

func (r *Recon) failJob(ctx context.Context, job *model.Job, cause error, log *logrus.Entry) {
	notification.NotifyError(fmt.Errorf("reconciliation job %s failed: %w", job.ID, cause))
	if markErr := r.datasource.MarkClaimedJobFailed(ctx, job); markErr != nil {
		if errors.Is(markErr, database.ErrClaimLost) {
			log.Warn("claim was taken over by another worker, leaving the job to its new owner")
			return
		}
		log.Errorf("failed to mark job failed: %v", markErr)
		return
	}
	r.fireHooks(ctx, hooks.JobFailed, JobOutcome{JobID: job.ID, PaymentID: job.PaymentID, Status: model.JobStatusFailed, Error: cause.Error()})
}

// JobOutcome is the data posted to hooks once a job reaches a terminal state.
type JobOutcome struct {
	JobID     string                      `json:"job_id"`
	PaymentID string                      `json:"payment_id"`
	Status    string                      `json:"status"`
	Result    *model.ReconciliationResult `json:"result,omitempty"`
	Error     string                      `json:"error,omitempty"`
}

// fireHooks dispatches outcome hooks. Hook failures never affect the job.
func (r *Recon) fireHooks(ctx context.Context, hookType hooks.HookType, outcome JobOutcome) {
	if r.hooks == nil {
		return
	}
	if err := r.hooks.ExecuteHooks(ctx, hookType, outcome.JobID, outcome); err != nil {
		logrus.WithField("job_id", outcome.JobID).Warnf("failed to dispatch %s hooks: %v", hookType, err)
	}
}

// commitOutcome writes the verdict atomically. On any error or panic the transaction is
// rolled back so none of the writes are observable.
func (r *Recon) commitOutcome(ctx context.Context, job *model.Job, payment *model.Payment, result *model.ReconciliationResult) (err error) {
	ctx, span := otel.Tracer("Recon Pipeline").Start(ctx, "Committing reconciliation outcome")
	defer span.End()

	tx, err := r.datasource.BeginTx(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	release := func() {}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic inside transaction: %v", p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logrus.WithField("job_id", job.ID).Errorf("rollback failed: %v", rbErr)
			}
		}
		release()
	}()

	if err = r.datasource.RecordReconciliationResultInTx(ctx, tx, result); err != nil {
		return errors.Wrap(err, "record reconciliation result")
	}

	if err = r.datasource.UpdatePaymentStatusInTx(ctx, tx, payment.ID, result.PaymentStatus()); err != nil {
		return errors.Wrap(err, "update payment status")
	}

	unlock, err := r.locker.LockAccount(ctx, tx, payment.AccountID)
	if err != nil {
		return errors.Wrap(err, "lock account ledger")
	}
	release = unlock

	balance, err := r.datasource.GetLatestBalanceInTx(ctx, tx, payment.AccountID)
	if err != nil {
		return errors.Wrap(err, "read latest balance")
	}

	entry := &model.LedgerEntry{
		AccountID:    payment.AccountID,
		PaymentID:    payment.ID,
		EntryType:    model.LedgerEntryTypePayment,
		Amount:       payment.Amount,
		BalanceAfter: model.NextBalance(balance, payment.Amount),
	}
	if err = r.datasource.AppendLedgerEntryInTx(ctx, tx, entry); err != nil {
		return errors.Wrap(err, "append ledger entry")
	}

	if err = r.datasource.MarkJobCompletedInTx(ctx, tx, job); err != nil {
		return errors.Wrap(err, "mark job completed")
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	span.SetAttributes(attribute.String("ledger.balance_after", entry.BalanceAfter.String()))
	return nil
}
