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

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("job")
	assert.True(t, strings.HasPrefix(id, "job_"))
	assert.Len(t, id, len("job_")+36)
	assert.NotEqual(t, id, GenerateUUIDWithSuffix("job"))
}

func TestJob_IsStale(t *testing.T) {
	now := time.Now()
	lockedLongAgo := now.Add(-31 * time.Second)
	lockedRecently := now.Add(-5 * time.Second)

	tests := []struct {
		name string
		job  Job
		want bool
	}{
		{"pending job is never stale", Job{Status: JobStatusPending}, false},
		{"processing without lock", Job{Status: JobStatusProcessing}, false},
		{"processing with fresh lock", Job{Status: JobStatusProcessing, LockedAt: &lockedRecently}, false},
		{"processing with expired lock", Job{Status: JobStatusProcessing, LockedAt: &lockedLongAgo}, true},
		{"failed job with expired lock", Job{Status: JobStatusFailed, LockedAt: &lockedLongAgo}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.IsStale(now, 30*time.Second))
		})
	}
}

func TestJob_IsTerminal(t *testing.T) {
	assert.False(t, (&Job{Status: JobStatusPending}).IsTerminal())
	assert.False(t, (&Job{Status: JobStatusProcessing}).IsTerminal())
	assert.True(t, (&Job{Status: JobStatusCompleted}).IsTerminal())
	assert.True(t, (&Job{Status: JobStatusFailed}).IsTerminal())
}

func TestReconciliationResult_PaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusCompleted, ReconciliationResult{Matched: true}.PaymentStatus())
	assert.Equal(t, PaymentStatusFailed, ReconciliationResult{Matched: false}.PaymentStatus())
}

func TestNextBalance(t *testing.T) {
	got := NextBalance(decimal.RequireFromString("200.00"), decimal.RequireFromString("50.00"))
	assert.True(t, got.Equal(decimal.RequireFromString("250.00")), got.String())

	got = NextBalance(decimal.Zero, decimal.RequireFromString("-5.00"))
	assert.True(t, got.Equal(decimal.RequireFromString("-5")), got.String())
}

func TestVerifyLedger(t *testing.T) {
	entries := []LedgerEntry{
		{ID: 1, AccountID: "acc_1", Amount: decimal.RequireFromString("200.00"), BalanceAfter: decimal.RequireFromString("200.00")},
		{ID: 2, AccountID: "acc_1", Amount: decimal.RequireFromString("50.00"), BalanceAfter: decimal.RequireFromString("250.00")},
		{ID: 3, AccountID: "acc_1", Amount: decimal.RequireFromString("-5.00"), BalanceAfter: decimal.RequireFromString("245.00")},
	}
	assert.NoError(t, VerifyLedger(entries))
	assert.NoError(t, VerifyLedger(nil))

	entries[2].BalanceAfter = decimal.RequireFromString("250.00")
	err := VerifyLedger(entries)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ledger entry 3")
}
