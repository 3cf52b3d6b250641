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

import "time"

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job is a unit of reconciliation work referencing one payment.
// Rows are created in the pending state by the payment producer and are
// only mutated by the job store's claim, complete and fail operations.
type Job struct {
	ID        string     `json:"id"`
	PaymentID string     `json:"payment_id"`
	Status    string     `json:"status"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LockedBy  *string    `json:"locked_by,omitempty"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the job has reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// IsStale reports whether a processing job's lock is older than lockTimeout
// at the given instant, which makes it eligible for reclaim by any worker.
func (j *Job) IsStale(now time.Time, lockTimeout time.Duration) bool {
	if j.Status != JobStatusProcessing || j.LockedAt == nil {
		return false
	}
	return j.LockedAt.Before(now.Add(-lockTimeout))
}

// JobStatusCount is the number of jobs currently in a given status.
type JobStatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}
