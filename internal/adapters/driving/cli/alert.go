package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sams-labs/synckit/internal/core/domain"
)

var (
	alertUser       string
	alertNote       string
	alertResolution string
	alertSnoozeFor  time.Duration
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Queue alert operations",
	Long: `Queues alert operations for delivery to the backend. Alert operations
are allowed offline; they drain on the next sync.`,
}

var alertAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAck,
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertResolve,
}

var alertSnoozeCmd = &cobra.Command{
	Use:   "snooze <alert-id>",
	Short: "Snooze an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertSnooze,
}

func init() {
	alertCmd.PersistentFlags().StringVarP(&alertUser, "user", "u", "", "acting user ID (required)")
	alertAckCmd.Flags().StringVar(&alertNote, "note", "", "acknowledgement note")
	alertResolveCmd.Flags().StringVar(&alertResolution, "resolution", "", "resolution note (required)")
	alertSnoozeCmd.Flags().DurationVar(&alertSnoozeFor, "for", time.Hour, "snooze duration")

	alertCmd.AddCommand(alertAckCmd)
	alertCmd.AddCommand(alertResolveCmd)
	alertCmd.AddCommand(alertSnoozeCmd)
	rootCmd.AddCommand(alertCmd)
}

func runAlertAck(cmd *cobra.Command, args []string) error {
	if alertUser == "" {
		return errors.New("--user is required")
	}
	return enqueueAction(cmd, domain.KindAcknowledgeAlert, &domain.AcknowledgeAlertPayload{
		AlertID: args[0],
		UserID:  alertUser,
		Note:    alertNote,
	})
}

func runAlertResolve(cmd *cobra.Command, args []string) error {
	if alertUser == "" {
		return errors.New("--user is required")
	}
	if alertResolution == "" {
		return errors.New("--resolution is required")
	}
	return enqueueAction(cmd, domain.KindResolveAlert, &domain.ResolveAlertPayload{
		AlertID:    args[0],
		UserID:     alertUser,
		Resolution: alertResolution,
	})
}

func runAlertSnooze(cmd *cobra.Command, args []string) error {
	if alertUser == "" {
		return errors.New("--user is required")
	}
	return enqueueAction(cmd, domain.KindSnoozeAlert, &domain.SnoozeAlertPayload{
		AlertID: args[0],
		UserID:  alertUser,
		Until:   time.Now().Add(alertSnoozeFor),
	})
}

// enqueueAction queues one action and reports the assigned ID.
func enqueueAction(cmd *cobra.Command, kind domain.ActionKind, payload any) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := getEngine(ctx)
	if err != nil {
		return err
	}

	id, err := eng.Enqueue(ctx, kind, payload)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return fmt.Errorf("%s is not allowed while offline", kind)
		}
		return fmt.Errorf("queueing %s: %w", kind, err)
	}
	cmd.Printf("Queued %s (%s), queue depth %d.\n", kind, shortID(id), eng.Status(ctx).QueueDepth)
	return nil
}
