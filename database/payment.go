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
	"fmt"

	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/jerry-enebeli/recon/model"
	"go.opentelemetry.io/otel"
)

// GetPaymentByID retrieves a payment by its ID.
func (d Datasource) GetPaymentByID(ctx context.Context, id string) (*model.Payment, error) {
	ctx, span := otel.Tracer("Payment").Start(ctx, "Fetching payment from db")
	defer span.End()

	payment := &model.Payment{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, account_id, amount, currency, status, updated_at
		FROM payments
		WHERE id = $1
	`, id).Scan(
		&payment.ID,
		&payment.AccountID,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment with ID '%s' not found", id), err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment", err)
	}

	return payment, nil
}

// UpdatePaymentStatusInTx sets the payment status within the pipeline transaction.
func (d Datasource) UpdatePaymentStatusInTx(ctx context.Context, tx *sql.Tx, id string, status string) error {
	ctx, span := otel.Tracer("Payment").Start(ctx, "Updating payment status")
	defer span.End()

	result, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment with ID '%s' not found", id), nil)
	}
	return nil
}
