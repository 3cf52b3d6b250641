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

package pgconn

import (
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jerry-enebeli/recon/config"
	_ "github.com/lib/pq" // Import the postgres driver
	"github.com/sirupsen/logrus"
)

const maxConnectRetries = 5

// connectBackOff is the retry policy used while waiting for Postgres to
// accept connections at startup.
var connectBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, maxConnectRetries)
}

// ConnectDB opens a pooled connection to Postgres and verifies it with a
// ping, retrying with exponential backoff. The caller owns the returned
// handle and must Close it on shutdown.
func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	dsn := cfg.ConnectionString()
	if dsn == "" {
		return nil, errors.New("data source DNS is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(config.DEFAULT_CONN_MAX_LIFETIME)
	db.SetConnMaxIdleTime(5 * time.Minute)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingErr := db.Ping()
		if pingErr != nil {
			logrus.Warnf("Database ping attempt %d failed: %v", attempt, pingErr)
		}
		return pingErr
	}, connectBackOff())
	if err != nil {
		logrus.Errorf("Database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	logrus.Info("Database connection established ✅")
	return db, nil
}
