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
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReconciliationStatusCompleted   = "completed"
	ReconciliationStatusDiscrepancy = "completed_with_discrepancy"
	ReconciliationStatusFailed      = "failed"
)

// ReconciliationResult is the verdict produced for one processed job.
// It is inserted once per job and never updated.
type ReconciliationResult struct {
	ID                int64               `json:"-"`
	PaymentID         string              `json:"payment_id"`
	JobID             string              `json:"job_id"`
	Status            string              `json:"status"`
	Matched           bool                `json:"matched"`
	DiscrepancyAmount decimal.NullDecimal `json:"discrepancy_amount"`
	Notes             string              `json:"notes"`
	CreatedAt         time.Time           `json:"created_at"`
}

// PaymentStatus maps the verdict onto the status written back to the payment.
func (r ReconciliationResult) PaymentStatus() string {
	if r.Matched {
		return PaymentStatusCompleted
	}
	return PaymentStatusFailed
}
