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
	"github.com/jerry-enebeli/recon/model"
	"github.com/shopspring/decimal"
)

const (
	noteNegativeAmount = "negative amount not allowed"
	noteZeroAmount     = "zero amount not allowed"
	noteDiscrepancy    = "discrepancy detected in amount"
	noteReconciled     = "successfully reconciled"
)

var (
	fixedDiscrepancy = decimal.RequireFromString("0.13")

	// discrepancyCents flags amounts whose cent part is exactly this value.
	discrepancyCents = decimal.NewFromInt(13)
	hundred          = decimal.NewFromInt(100)
)

// RuleFunc maps a payment snapshot to a reconciliation verdict. Implementations must be
// pure: no I/O, no shared state, the same payment always yields the same result.
type RuleFunc func(payment model.Payment) model.ReconciliationResult

// Reconcile is the default rule set. Rules are evaluated in order and the first match wins.
func Reconcile(payment model.Payment) model.ReconciliationResult {
	result := model.ReconciliationResult{
		PaymentID: payment.ID,
	}

	switch {
	case payment.Amount.IsNegative():
		result.Status = model.ReconciliationStatusFailed
		result.Notes = noteNegativeAmount
	case payment.Amount.IsZero():
		result.Status = model.ReconciliationStatusFailed
		result.Notes = noteZeroAmount
	case centsOf(payment.Amount).Equal(discrepancyCents):
		result.Status = model.ReconciliationStatusDiscrepancy
		result.DiscrepancyAmount = decimal.NewNullDecimal(fixedDiscrepancy)
		result.Notes = noteDiscrepancy
	default:
		result.Status = model.ReconciliationStatusCompleted
		result.Matched = true
		result.Notes = noteReconciled
	}

	return result
}

// centsOf returns round(amount * 100) mod 100. The remainder stays in decimal so
// amounts beyond the int64 range keep their cent part.
func centsOf(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(2).Round(0).Mod(hundred)
}
