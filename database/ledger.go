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

	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/model"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// LockAccountInTx takes a transaction-scoped advisory lock on the account so that
// concurrent appends to the same ledger tail are serialized. The lock is released
// when the transaction commits or rolls back.
func (d Datasource) LockAccountInTx(ctx context.Context, tx *sql.Tx, accountID string) error {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Locking account ledger")
	defer span.End()

	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, accountID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock account ledger", err)
	}
	return nil
}

// GetLatestBalanceInTx returns the balance_after of the account's newest ledger entry,
// or zero when the account has no entries.
func (d Datasource) GetLatestBalanceInTx(ctx context.Context, tx *sql.Tx, accountID string) (decimal.Decimal, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching latest balance")
	defer span.End()

	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT balance_after
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, accountID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch latest balance", err)
	}

	span.SetAttributes(attribute.String("ledger.balance", balance.String()))
	return balance, nil
}

// AppendLedgerEntryInTx inserts the entry and fills in its ID and creation time.
// created_at uses clock_timestamp() so entries in the same transaction still order.
func (d Datasource) AppendLedgerEntryInTx(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Appending ledger entry")
	defer span.End()

	if entry.EntryType == "" {
		entry.EntryType = model.LedgerEntryTypePayment
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (account_id, payment_id, entry_type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING id, created_at
	`, entry.AccountID, entry.PaymentID, entry.EntryType, entry.Amount, entry.BalanceAfter).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append ledger entry", err)
	}
	return nil
}

// GetLedgerEntries lists an account's ledger entries oldest first.
func (d Datasource) GetLedgerEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	ctx, span := otel.Tracer("Ledger").Start(ctx, "Fetching ledger entries")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, account_id, payment_id, entry_type, amount, balance_after, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch ledger entries", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		var entry model.LedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.PaymentID,
			&entry.EntryType,
			&entry.Amount,
			&entry.BalanceAfter,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate ledger entries", err)
	}

	return entries, nil
}
