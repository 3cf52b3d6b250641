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
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jerry-enebeli/recon/internal/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := NewDataSource(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := ds.BeginTx(context.Background())
	require.NoError(t, err)
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTx_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := NewDataSource(db)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	tx, err := ds.BeginTx(context.Background())
	assert.Nil(t, tx)
	assert.True(t, apierror.HasCode(err, apierror.ErrInternalServer))
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	ds := NewDataSource(db)

	mock.ExpectPing()
	assert.NoError(t, ds.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
