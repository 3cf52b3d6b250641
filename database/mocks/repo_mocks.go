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
package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/jerry-enebeli/recon/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Store methods

func (m *MockDataSource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(*sql.Tx)
	return tx, args.Error(1)
}

func (m *MockDataSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Job methods

func (m *MockDataSource) ClaimNextJob(ctx context.Context, workerID string, lockTimeout time.Duration) (*model.Job, error) {
	args := m.Called(ctx, workerID, lockTimeout)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *MockDataSource) MarkJobCompleted(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobCompletedInTx(ctx context.Context, tx *sql.Tx, claimed *model.Job) error {
	args := m.Called(ctx, tx, claimed)
	return args.Error(0)
}

func (m *MockDataSource) MarkJobFailed(ctx context.Context, jobID string, incrementAttempt bool) error {
	args := m.Called(ctx, jobID, incrementAttempt)
	return args.Error(0)
}

func (m *MockDataSource) MarkClaimedJobFailed(ctx context.Context, claimed *model.Job) error {
	args := m.Called(ctx, claimed)
	return args.Error(0)
}

func (m *MockDataSource) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *MockDataSource) EnqueueJob(ctx context.Context, paymentID string) (*model.Job, error) {
	args := m.Called(ctx, paymentID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

func (m *MockDataSource) ResetFailedJobs(ctx context.Context, jobIDs []string) (int64, error) {
	args := m.Called(ctx, jobIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) CountJobsByStatus(ctx context.Context) ([]model.JobStatusCount, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).([]model.JobStatusCount)
	return counts, args.Error(1)
}

// Payment methods

func (m *MockDataSource) GetPaymentByID(ctx context.Context, id string) (*model.Payment, error) {
	args := m.Called(ctx, id)
	payment, _ := args.Get(0).(*model.Payment)
	return payment, args.Error(1)
}

func (m *MockDataSource) UpdatePaymentStatusInTx(ctx context.Context, tx *sql.Tx, id string, status string) error {
	args := m.Called(ctx, tx, id, status)
	return args.Error(0)
}

// Ledger methods

func (m *MockDataSource) LockAccountInTx(ctx context.Context, tx *sql.Tx, accountID string) error {
	args := m.Called(ctx, tx, accountID)
	return args.Error(0)
}

func (m *MockDataSource) GetLatestBalanceInTx(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	args := m.Called(ctx, tx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockDataSource) AppendLedgerEntryInTx(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error {
	args := m.Called(ctx, tx, entry)
	return args.Error(0)
}

func (m *MockDataSource) GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, accountID, limit, offset)
	entries, _ := args.Get(0).([]model.LedgerEntry)
	return entries, args.Error(1)
}

// Reconciliation methods

func (m *MockDataSource) RecordReconciliationResultInTx(ctx context.Context, tx *sql.Tx, result *model.ReconciliationResult) error {
	args := m.Called(ctx, tx, result)
	return args.Error(0)
}

func (m *MockDataSource) GetReconciliationResultsByJobID(ctx context.Context, jobID string) ([]model.ReconciliationResult, error) {
	args := m.Called(ctx, jobID)
	results, _ := args.Get(0).([]model.ReconciliationResult)
	return results, args.Error(1)
}
