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
)

// Datasource is the Postgres-backed store shared by the job store, ledger
// accessor and pipeline writes. The connection is owned by the caller:
// it is opened at startup and closed on shutdown.
type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(conn *sql.DB) IDataSource {
	return &Datasource{Conn: conn}
}

// BeginTx opens a read-committed transaction for the processing pipeline.
func (d Datasource) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	return tx, nil
}

// Ping verifies the store is reachable.
func (d Datasource) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

// Close releases the connection pool.
func (d Datasource) Close() error {
	return d.Conn.Close()
}
