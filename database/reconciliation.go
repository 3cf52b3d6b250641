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
	"go.opentelemetry.io/otel"
)

// RecordReconciliationResultInTx inserts a reconciliation result and fills in its ID
// and creation time.
func (d Datasource) RecordReconciliationResultInTx(ctx context.Context, tx *sql.Tx, result *model.ReconciliationResult) error {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Saving reconciliation result to db")
	defer span.End()

	err := tx.QueryRowContext(ctx, `
		INSERT INTO reconciliation_results (payment_id, recon_job_id, status, matched, discrepancy_amount, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, result.PaymentID, result.JobID, result.Status, result.Matched, result.DiscrepancyAmount, result.Notes,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record reconciliation result", err)
	}
	return nil
}

// GetReconciliationResultsByJobID retrieves the results recorded for a job, oldest first.
func (d Datasource) GetReconciliationResultsByJobID(ctx context.Context, jobID string) ([]model.ReconciliationResult, error) {
	ctx, span := otel.Tracer("Reconciliation").Start(ctx, "Fetching reconciliation results by job ID")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, payment_id, recon_job_id, status, matched, discrepancy_amount, notes, created_at
		FROM reconciliation_results
		WHERE recon_job_id = $1
		ORDER BY created_at ASC, id ASC
	`, jobID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fetch reconciliation results", err)
	}
	defer func() { _ = rows.Close() }()

	results := []model.ReconciliationResult{}
	for rows.Next() {
		var result model.ReconciliationResult
		var notes sql.NullString
		err = rows.Scan(
			&result.ID,
			&result.PaymentID,
			&result.JobID,
			&result.Status,
			&result.Matched,
			&result.DiscrepancyAmount,
			&notes,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconciliation result", err)
		}
		result.Notes = notes.String
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate reconciliation results", err)
	}

	return results, nil
}
