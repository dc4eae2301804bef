package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"anchord/internal/api"
	"anchord/internal/outbox"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the anchoring queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []string
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				for _, raw := range strings.Split(trimmed, ",") {
					status, ok := outbox.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", strings.TrimSpace(raw))
					}
					statuses = append(statuses, string(status))
				}
			}

			jobs, err := ctx.client().ListJobs(cmd.Context(), statuses...)
			if err != nil {
				// Read straight from the database when the daemon is down.
				err = ctx.withStore(func(store *outbox.Store) error {
					parsed := make([]outbox.Status, 0, len(statuses))
					for _, raw := range statuses {
						parsed = append(parsed, outbox.Status(raw))
					}
					stored, listErr := store.List(cmd.Context(), parsed...)
					if listErr != nil {
						return listErr
					}
					jobs = api.FromJobs(stored)
					return nil
				})
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.EvidenceID,
					job.Status,
					strconv.Itoa(job.Attempts),
					job.BatchID,
					job.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Evidence", "Status", "Attempts", "Batch", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (pending, claimed, submitting, submitted, confirming, confirmed, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs for another anchoring attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(store *outbox.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove confirmed and failed jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("clear removes finished jobs permanently; re-run with --force")
			}
			return ctx.withStore(func(store *outbox.Store) error {
				count, err := store.ClearTerminal(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm removal of finished jobs")
	return cmd
}
