package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all queued actions and cached state",
	Long: `Drops the outbox and the encrypted cache, cancelling any in-flight
sync. Queued actions are lost permanently; use this on logout or when
switching backends.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false,
		"skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	depth := eng.Status(ctx).QueueDepth
	if !clearForce {
		cmd.Printf("This drops %d queued action(s) and the local cache. Continue? [y/N]: ", depth)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			cmd.Println("Aborted.")
			return nil
		}
	}

	if err := eng.Clear(ctx); err != nil {
		return fmt.Errorf("clearing local state: %w", err)
	}
	cmd.Println("Local queue and cache cleared.")
	return nil
}
