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
	"embed"
	"time"

	"github.com/jerry-enebeli/recon/config"
	"github.com/jerry-enebeli/recon/database"
	"github.com/jerry-enebeli/recon/internal/cache"
	"github.com/jerry-enebeli/recon/internal/hooks"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Recon claims reconciliation jobs and runs them through the processing pipeline.
// The store handle is passed in explicitly and owned by the caller.
type Recon struct {
	datasource  database.IDataSource
	rules       RuleFunc
	locker      AccountLocker
	workerID    string
	lockTimeout time.Duration
	cache       cache.Cache
	hooks       hooks.HookManager
}

// NewRecon builds a Recon on top of the given datasource using the worker settings
// from the loaded configuration. Ledger appends are serialized with Postgres advisory
// locks unless another AccountLocker is supplied with WithAccountLocker.
func NewRecon(db database.IDataSource) (*Recon, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	return &Recon{
		datasource:  db,
		rules:       Reconcile,
		locker:      NewAdvisoryAccountLocker(db),
		workerID:    cnf.Worker.ID,
		lockTimeout: cnf.Worker.LockTimeout(),
	}, nil
}

// WithRules replaces the rule engine used by the pipeline.
func (r *Recon) WithRules(rules RuleFunc) *Recon {
	r.rules = rules
	return r
}

// WithAccountLocker replaces the strategy used to serialize ledger appends per account.
func (r *Recon) WithAccountLocker(locker AccountLocker) *Recon {
	r.locker = locker
	return r
}

// WithCache sets the cache used for the job counts reported by Health.
func (r *Recon) WithCache(c cache.Cache) *Recon {
	r.cache = c
	return r
}

// WithHooks sets the manager used to fire webhooks when a job completes or fails.
func (r *Recon) WithHooks(m hooks.HookManager) *Recon {
	r.hooks = m
	return r
}

// Hooks returns the configured hook manager, or nil when hooks are disabled.
func (r *Recon) Hooks() hooks.HookManager {
	return r.hooks
}

// WaitForHooks blocks until in-flight hook deliveries finish or ctx is done.
func (r *Recon) WaitForHooks(ctx context.Context) error {
	if r.hooks == nil {
		return nil
	}
	return r.hooks.Wait(ctx)
}

// WorkerID returns the identity this instance tags claimed jobs with.
func (r *Recon) WorkerID() string {
	return r.workerID
}

// LockTimeout returns how long a claim is honoured before other workers may reclaim it.
func (r *Recon) LockTimeout() time.Duration {
	return r.lockTimeout
}
