package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued actions",
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	actions := eng.QueueSnapshot()
	if len(actions) == 0 {
		cmd.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPRIORITY\tRETRIES\tENQUEUED")
	for _, a := range actions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(a.ID), a.Kind, a.Status, a.Priority, a.RetryCount,
			a.EnqueuedAt.Local().Format("15:04:05"))
	}
	return nil
}

// shortID trims a UUID to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
