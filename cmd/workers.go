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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jerry-enebeli/recon"
	"github.com/jerry-enebeli/recon/api"
	"github.com/jerry-enebeli/recon/config"
	pg_listener "github.com/jerry-enebeli/recon/internal/pg-listener"
	trace "github.com/jerry-enebeli/recon/internal/traces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// initializeObservability sets up tracing when telemetry is enabled. The returned
// shutdown func is always safe to call.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}

	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %w", err)
	}
	return shutdown, nil
}

// startMonitoringServer serves the monitoring API in the background.
func startMonitoringServer(r *recon.Recon, port string) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewAPI(r).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.Infof("monitoring API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("monitoring server error: %v", err)
		}
	}()
	return srv
}

// startJobListener wakes the poller whenever a job becomes pending. The fixed poll
// interval keeps running, so a listener failure only costs latency.
func startJobListener(ctx context.Context, connStr string, poller *recon.Poller) {
	listener := pg_listener.NewDBListener(pg_listener.ListenerConfig{
		PgConnStr: connStr,
		Channel:   pg_listener.JobsChannel,
	}, poller)

	go func() {
		if err := listener.Start(ctx); err != nil {
			logrus.Errorf("job listener stopped: %v", err)
		}
	}()
}

// workerCommands starts the poller and blocks until SIGINT or SIGTERM. On shutdown the
// in-flight job finishes before the store connection is released.
func workerCommands(app *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the reconciliation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.setup(ctx); err != nil {
				return err
			}
			defer app.close()

			shutdownTracing, err := initializeObservability(ctx, app.cnf)
			if err != nil {
				return err
			}

			poller := recon.NewPoller(app.recon, app.cnf.Worker.PollInterval())
			poller.Start(ctx)

			if app.cnf.Worker.ListenNotifications {
				startJobListener(ctx, app.cnf.DataSource.ConnectionString(), poller)
			}

			srv := startMonitoringServer(app.recon, app.cnf.Worker.MonitoringPort)

			<-ctx.Done()
			logrus.Info("Shutting down worker...")

			poller.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := app.recon.WaitForHooks(shutdownCtx); err != nil {
				logrus.Warnf("hook deliveries still running at shutdown: %v", err)
			}

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Warnf("error shutting down monitoring server: %v", err)
			}
			if err := shutdownTracing(shutdownCtx); err != nil {
				logrus.Warnf("error flushing traces: %v", err)
			}
			return nil
		},
	}

	return cmd
}
