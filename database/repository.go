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
	"time"

	"github.com/jerry-enebeli/recon/model"
	"github.com/shopspring/decimal"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	store          // Interface for connection lifecycle and transactions
	job            // Interface for job queue operations
	payment        // Interface for payment operations
	ledger         // Interface for ledger-related operations
	reconciliation // Interface for reconciliation result operations
}

// store defines connection-level operations.
type store interface {
	BeginTx(ctx context.Context) (*sql.Tx, error) // Opens a read-committed transaction
	Ping(ctx context.Context) error               // Checks the store is reachable
	Close() error                                 // Releases the connection pool
}

// job defines methods for the reconciliation job queue.
type job interface {
	ClaimNextJob(ctx context.Context, workerID string, lockTimeout time.Duration) (*model.Job, error) // Atomically claims the oldest eligible job
	MarkJobCompleted(ctx context.Context, jobID string) error                                        // Moves a processing job to completed
	MarkJobCompletedInTx(ctx context.Context, tx *sql.Tx, claimed *model.Job) error                  // Completes a job inside the pipeline transaction, guarded by the claim
	MarkJobFailed(ctx context.Context, jobID string, incrementAttempt bool) error                    // Moves a job to failed
	MarkClaimedJobFailed(ctx context.Context, claimed *model.Job) error                              // Fails a job still held by the caller, guarded by the claim
	GetJob(ctx context.Context, jobID string) (*model.Job, error)                                    // Retrieves a job by ID
	EnqueueJob(ctx context.Context, paymentID string) (*model.Job, error)                            // Inserts a pending job for a payment
	ResetFailedJobs(ctx context.Context, jobIDs []string) (int64, error)                             // Returns failed jobs to pending
	CountJobsByStatus(ctx context.Context) ([]model.JobStatusCount, error)                           // Counts jobs grouped by status
}

// payment defines methods for handling payments.
type payment interface {
	GetPaymentByID(ctx context.Context, id string) (*model.Payment, error)                    // Retrieves a payment by ID
	UpdatePaymentStatusInTx(ctx context.Context, tx *sql.Tx, id string, status string) error // Updates a payment status inside a transaction
}

// ledger defines methods for the append-only account ledger.
type ledger interface {
	LockAccountInTx(ctx context.Context, tx *sql.Tx, accountID string) error                                   // Serializes ledger appends for an account until the transaction ends
	GetLatestBalanceInTx(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, error)           // Reads the account's newest balance_after
	AppendLedgerEntryInTx(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error                     // Appends a ledger entry
	GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) // Lists an account's entries oldest first
}

// reconciliation defines methods for reconciliation results.
type reconciliation interface {
	RecordReconciliationResultInTx(ctx context.Context, tx *sql.Tx, result *model.ReconciliationResult) error // Inserts a reconciliation result
	GetReconciliationResultsByJobID(ctx context.Context, jobID string) ([]model.ReconciliationResult, error)  // Retrieves the results recorded for a job
}
