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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	LedgerEntryTypePayment = "payment"

	// BalancePrecision is the number of decimal places kept on balance_after.
	BalancePrecision = 2
)

// LedgerEntry is an immutable, append-only record of a balance-affecting
// event for an account.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	AccountID    string          `json:"account_id"`
	PaymentID    string          `json:"payment_id"`
	EntryType    string          `json:"entry_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NextBalance computes the running balance after applying amount to the
// previous tail balance.
func NextBalance(previous, amount decimal.Decimal) decimal.Decimal {
	return previous.Add(amount).Round(BalancePrecision)
}

// VerifyLedger replays entries (oldest first) from a zero balance and
// returns an error describing the first entry whose balance_after does not
// equal the running sum.
func VerifyLedger(entries []LedgerEntry) error {
	running := decimal.Zero
	for i, entry := range entries {
		running = NextBalance(running, entry.Amount)
		if !running.Equal(entry.BalanceAfter) {
			return fmt.Errorf("ledger entry %d (index %d) for account %s has balance_after %s, expected %s",
				entry.ID, i, entry.AccountID, entry.BalanceAfter.String(), running.String())
		}
	}
	return nil
}
