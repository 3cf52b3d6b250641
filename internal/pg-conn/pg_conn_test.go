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
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/jerry-enebeli/recon/config"
	"github.com/stretchr/testify/assert"
)

func noRetry(t *testing.T) {
	original := connectBackOff
	connectBackOff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1)
	}
	t.Cleanup(func() { connectBackOff = original })
}

func TestConnectDB_InvalidDNS(t *testing.T) {
	noRetry(t)

	db, err := ConnectDB(config.DataSourceConfig{
		Dns:          "invalid-postgres-url",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestConnectDB_UnreachableHost(t *testing.T) {
	noRetry(t)

	db, err := ConnectDB(config.DataSourceConfig{
		Host:         "127.0.0.1",
		Port:         "1",
		Database:     "payments",
		User:         "postgres",
		Password:     "postgres",
		SSLMode:      "disable",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	assert.Error(t, err)
	assert.Nil(t, db)
}
