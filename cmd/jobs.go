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
	"encoding/json"
	"fmt"

	"github.com/jerry-enebeli/recon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// jobCommands groups the operator commands for inspecting and driving the job queue.
func jobCommands(app *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "inspect and manage reconciliation jobs",
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enqueue <payment_id>",
		Short: "queue a reconciliation job for a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.setup(ctx); err != nil {
				return err
			}
			job, err := app.recon.EnqueueJob(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry-failed [job_id...]",
		Short: "move failed jobs back to pending; all failed jobs when no id is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.setup(ctx); err != nil {
				return err
			}
			reset, err := app.recon.RetryFailedJobs(ctx, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed jobs\n", reset)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run-once",
		Short: "claim and process at most one job, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.setup(ctx); err != nil {
				return err
			}
			err := runOnce(ctx, cmd, recon.NewPoller(app.recon, app.cnf.Worker.PollInterval()))

			waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if waitErr := app.recon.WaitForHooks(waitCtx); waitErr != nil {
				logrus.Warnf("hook deliveries still running at exit: %v", waitErr)
			}
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <job_id>",
		Short: "show a job and its reconciliation results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.setup(ctx); err != nil {
				return err
			}
			job, err := app.recon.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := app.recon.GetJobResults(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"job": job, "results": results})
		},
	})

	return cmd
}

func runOnce(ctx context.Context, cmd *cobra.Command, poller *recon.Poller) error {
	job, err := poller.Tick(ctx)
	if job == nil {
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No eligible job")
		return nil
	}

	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s did not complete: %v\n", job.ID, err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed\n", job.ID)
	return nil
}
