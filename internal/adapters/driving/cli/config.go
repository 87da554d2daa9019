package cli

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var configSetServerCmd = &cobra.Command{
	Use:   "set-server <url>",
	Short: "Set the backend server URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetServer,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetServerCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cmd.Printf("Config file:  %s\n", configStore.Path())
	if settings.ServerURL != "" {
		cmd.Printf("Server URL:   %s\n", settings.ServerURL)
	} else {
		cmd.Println("Server URL:   (not set)")
	}
	if settings.DataDir != "" {
		cmd.Printf("Data dir:     %s\n", settings.DataDir)
	}
	cmd.Printf("Health path:  %s\n", settings.HealthPath)

	e := settings.Engine
	cmd.Println("Engine:")
	cmd.Printf("  queue_capacity: %d\n", e.QueueCapacity)
	cmd.Printf("  max_retries:    %d\n", e.MaxRetries)
	cmd.Printf("  batch_size:     %d\n", e.BatchSize)
	cmd.Printf("  action_timeout: %s\n", e.ActionTimeout)
	cmd.Printf("  default_ttl:    %s\n", e.DefaultTTL)
	cmd.Printf("  sync_interval:  %s\n", e.SyncInterval)
	cmd.Printf("  strategy:       %s\n", e.Strategy)
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := configStore.Save(settings); err != nil {
		return err
	}
	cmd.Printf("Wrote %s\n", configStore.Path())
	return nil
}

func runConfigSetServer(cmd *cobra.Command, args []string) error {
	settings.ServerURL = args[0]
	if err := configStore.Save(settings); err != nil {
		return err
	}
	cmd.Printf("Server URL set to %s\n", settings.ServerURL)
	return nil
}
