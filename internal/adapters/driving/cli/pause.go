package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause syncing (queueing stays available)",
	RunE:  runPause,
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume syncing",
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runPause(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}
	eng.Pause()
	cmd.Println("Sync paused. Actions keep queueing; nothing drains until resume.")
	return nil
}

func runResume(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}
	eng.Resume()
	cmd.Println("Sync resumed.")
	return nil
}
