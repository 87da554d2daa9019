package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine state and queue depth",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	st := eng.Status(ctx)

	connectivity := "offline"
	if st.Online {
		connectivity = "online"
	}
	cmd.Printf("State:        %s\n", st.State)
	cmd.Printf("Connectivity: %s\n", connectivity)
	cmd.Printf("Queue depth:  %d\n", st.QueueDepth)

	if last := eng.LastSyncTime(ctx); !last.IsZero() {
		cmd.Printf("Last sync:    %s\n", last.Local().Format("2006-01-02 15:04:05"))
	} else {
		cmd.Println("Last sync:    never")
	}

	if st.ActiveSession != "" {
		cmd.Printf("Active session: %s\n", st.ActiveSession)
	}
	if s := st.LastSession; s != nil {
		cmd.Printf("Last session:   %s (%d succeeded, %d failed, %d conflicts)\n",
			s.ID, s.Succeeded, s.Failed, s.Conflicts)
	}
	if records := eng.ConflictRecords(); len(records) > 0 {
		cmd.Printf("Conflicts resolved this run: %d\n", len(records))
	}
	return nil
}
