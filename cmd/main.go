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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jerry-enebeli/recon"
	"github.com/jerry-enebeli/recon/config"
	"github.com/jerry-enebeli/recon/database"
	"github.com/jerry-enebeli/recon/internal/cache"
	"github.com/jerry-enebeli/recon/internal/hooks"
	"github.com/jerry-enebeli/recon/internal/notification"
	pgconn "github.com/jerry-enebeli/recon/internal/pg-conn"
	redis_db "github.com/jerry-enebeli/recon/internal/redis-db"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const healthCacheLocalTTL = 5 * time.Second

// Recon represents the CLI application, encapsulating the root Cobra command.
type Recon struct {
	cmd *cobra.Command
}

// reconInstance holds the process-scoped resources shared by the commands. They are
// opened by setup and released by close, never reached through globals.
type reconInstance struct {
	recon *recon.Recon
	cnf   *config.Configuration
	db    *sql.DB
	redis *redis_db.Redis
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration from the environment before any command runs.
func preRun(app *reconInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// setup connects to Postgres, and to Redis when one is configured, and builds the Recon
// instance. Redis backs outcome hooks, the shared health cache and the optional
// redis ledger lock.
func (app *reconInstance) setup(_ context.Context) error {
	db, err := pgconn.ConnectDB(app.cnf.DataSource)
	if err != nil {
		notification.NotifyError(err)
		return fmt.Errorf("error getting datasource: %w", err)
	}
	app.db = db

	r, err := recon.NewRecon(database.NewDataSource(db))
	if err != nil {
		return fmt.Errorf("error creating recon: %w", err)
	}

	var shared redis.UniversalClient
	if app.cnf.Redis.Dns != "" {
		redisClient, err := redis_db.NewRedisClient([]string{app.cnf.Redis.Dns}, app.cnf.Redis.SkipTLSVerify)
		if err != nil {
			return fmt.Errorf("error connecting to redis: %w", err)
		}
		app.redis = redisClient
		shared = redisClient.Client()
		r.WithHooks(hooks.NewHookManager(shared))
	}

	if app.cnf.Worker.LedgerLock == config.LedgerLockRedis {
		r.WithAccountLocker(recon.NewRedisAccountLocker(shared, r.WorkerID(), r.LockTimeout()))
	}
	r.WithCache(cache.NewCache(shared, healthCacheLocalTTL))

	app.recon = r
	return nil
}

// close releases the store connection and the redis client.
func (app *reconInstance) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logrus.Warnf("error closing redis client: %v", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			logrus.Warnf("error closing database: %v", err)
		}
	}
}

// NewCLI creates the command-line interface for the recon worker.
func NewCLI() *Recon {
	app := &reconInstance{}

	var rootCmd = &cobra.Command{
		Use:          "recon",
		Short:        "Payment reconciliation worker",
		SilenceUsage: true,
		Run:          func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentPreRunE = preRun(app)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(jobCommands(app))
	rootCmd.AddCommand(configCommands(app))

	return &Recon{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Recon) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
