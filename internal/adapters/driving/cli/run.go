package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sams-labs/synckit/internal/core/domain"
	"github.com/sams-labs/synckit/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine in the foreground",
	Long: `Keeps the engine alive, draining the queue on the configured interval
and whenever connectivity returns. Engine events are printed as they
happen; config file edits are picked up live. Stop with Ctrl-C.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	reloads, err := configStore.Watch(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Engine running against %s. Ctrl-C to stop.\n", settings.ServerURL)
	events := eng.Events()

	for {
		select {
		case <-ctx.Done():
			cmd.Println("\nShutting down.")
			return nil
		case cfg, ok := <-reloads:
			if !ok {
				continue
			}
			// Engine tuning applies on next start; logging applies now.
			settings = cfg
			logger.SetVerbose(verbose || cfg.Verbose)
			logger.Info("config reloaded from %s", configStore.Path())
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(cmd, evt)
		}
	}
}

func printEvent(cmd *cobra.Command, evt domain.Event) {
	ts := evt.At.Local().Format("15:04:05")
	switch evt.Type {
	case domain.EventSyncStarted:
		if evt.Session != nil {
			cmd.Printf("[%s] sync started (session %s)\n", ts, shortID(evt.Session.ID))
		}
	case domain.EventSyncCompleted:
		if s := evt.Session; s != nil {
			cmd.Printf("[%s] sync completed in %s: %d succeeded, %d failed, %d conflicts\n",
				ts, s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond),
				s.Succeeded, s.Failed, s.Conflicts)
		}
	case domain.EventActionFailed:
		cmd.Printf("[%s] action %s permanently failed: %s\n", ts, shortID(evt.ActionID), evt.Err)
	case domain.EventOnlineRestored:
		cmd.Printf("[%s] connectivity restored\n", ts)
	case domain.EventWentOffline:
		cmd.Printf("[%s] went offline\n", ts)
	}
}
