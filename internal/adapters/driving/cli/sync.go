package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sams-labs/synckit/internal/core/domain"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the outbox now",
	Long: `Forces an immediate drain of queued actions instead of waiting for
the periodic sync or a connectivity change.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 2*time.Minute,
		"how long to wait for the session to finish")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	// Subscribe before forcing so the completion event cannot be missed.
	events := eng.Events()

	sessionID, err := eng.ForceSync(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSyncDisabled) {
			return errors.New("sync is paused; run 'synckit resume' first")
		}
		return fmt.Errorf("starting sync: %w", err)
	}
	if sessionID == "" {
		cmd.Println("Nothing to sync.")
		return nil
	}
	cmd.Printf("Syncing (session %s)...\n", sessionID)

	deadline := time.NewTimer(syncTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("session %s did not finish within %s", sessionID, syncTimeout)
		case evt, ok := <-events:
			if !ok {
				return errors.New("engine closed while syncing")
			}
			switch evt.Type {
			case domain.EventActionFailed:
				cmd.Printf("Action %s failed permanently: %s\n", evt.ActionID, evt.Err)
			case domain.EventSyncCompleted:
				if evt.Session == nil || evt.Session.ID != sessionID {
					continue
				}
				printSession(cmd, evt.Session)
				return nil
			}
		}
	}
}

func printSession(cmd *cobra.Command, s *domain.SyncSession) {
	if s == nil {
		cmd.Println("Done.")
		return
	}
	cmd.Printf("Done in %s: %d succeeded, %d failed, %d conflicts.\n",
		s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond),
		s.Succeeded, s.Failed, s.Conflicts)
}
