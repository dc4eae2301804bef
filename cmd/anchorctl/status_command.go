package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"anchord/internal/outbox"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			status, err := ctx.client().Status(cmd.Context())
			if err == nil {
				fmt.Fprintf(out, "Daemon:    running (pid %d)\n", status.PID)
				fmt.Fprintf(out, "Provider:  %s\n", status.Provider)
				fmt.Fprintf(out, "Database:  %s\n", status.OutboxDBPath)
				fmt.Fprintf(out, "Healthy:   %s\n", yesNo(status.Health.Healthy))
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderStats(status.QueueStats))
				return nil
			}

			// Fall back to the database when the daemon is down.
			return ctx.withStore(func(store *outbox.Store) error {
				stats, statsErr := store.Stats(cmd.Context())
				if statsErr != nil {
					return statsErr
				}
				merged := make(map[string]int, len(stats))
				for status, count := range stats {
					merged[string(status)] = count
				}
				fmt.Fprintln(out, "Daemon:    not running")
				fmt.Fprintf(out, "Database:  %s\n", store.Path())
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderStats(merged))
				return nil
			})
		},
	}
}

func renderStats(stats map[string]int) string {
	rows := make([][]string, 0, len(outbox.AllStatuses()))
	total := 0
	for _, status := range outbox.AllStatuses() {
		count := stats[string(status)]
		total += count
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})
	return renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
