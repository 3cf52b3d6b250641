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
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jerry-enebeli/recon/database"
	redlock "github.com/jerry-enebeli/recon/internal/lock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// AccountLocker serializes appends to one account's ledger tail. The returned release
// func must be called once the surrounding transaction has committed or rolled back.
type AccountLocker interface {
	LockAccount(ctx context.Context, tx *sql.Tx, accountID string) (release func(), err error)
}

// AdvisoryAccountLocker takes a transaction-scoped Postgres advisory lock per account.
type AdvisoryAccountLocker struct {
	datasource database.IDataSource
}

func NewAdvisoryAccountLocker(db database.IDataSource) *AdvisoryAccountLocker {
	return &AdvisoryAccountLocker{datasource: db}
}

// LockAccount blocks until the account's advisory lock is held by tx. Postgres releases
// it at commit or rollback, so release is a no-op.
func (l *AdvisoryAccountLocker) LockAccount(ctx context.Context, tx *sql.Tx, accountID string) (func(), error) {
	if err := l.datasource.LockAccountInTx(ctx, tx, accountID); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// RedisAccountLocker holds a redis lock per account across workers. Used when the
// ledger lock is configured as redis.
type RedisAccountLocker struct {
	client      redis.UniversalClient
	workerID    string
	lockTimeout time.Duration
}

func NewRedisAccountLocker(client redis.UniversalClient, workerID string, lockTimeout time.Duration) *RedisAccountLocker {
	return &RedisAccountLocker{client: client, workerID: workerID, lockTimeout: lockTimeout}
}

func ledgerLockKey(accountID string) string {
	return fmt.Sprintf("recon:ledger:%s", accountID)
}

// LockAccount waits up to the lock timeout for the account key. The key expires after the
// same timeout so a crashed worker cannot block the account forever.
func (l *RedisAccountLocker) LockAccount(ctx context.Context, _ *sql.Tx, accountID string) (func(), error) {
	locker := redlock.NewLocker(l.client, ledgerLockKey(accountID), fmt.Sprintf("%s:%s", l.workerID, uuid.NewString()))
	if err := locker.WaitLock(ctx, l.lockTimeout, l.lockTimeout); err != nil {
		return nil, err
	}

	return func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithField("account_id", accountID).Warnf("failed to release ledger lock: %v", err)
		}
	}, nil
}
