package cli

import (
	"github.com/spf13/cobra"

	"github.com/sams-labs/synckit/internal/core/domain"
)

var (
	serverName string
	serverHost string
	serverPort int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Queue monitored-server changes",
	Long: `Queues changes to the set of monitored servers. Server changes are
structural and require connectivity: offline they are rejected rather
than queued.`,
}

var serverAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a server for monitoring",
	RunE:  runServerAdd,
}

var serverUpdateCmd = &cobra.Command{
	Use:   "update <server-id>",
	Short: "Update a monitored server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerUpdate,
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <server-id>",
	Short: "Deregister a monitored server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerRemove,
}

func init() {
	serverAddCmd.Flags().StringVar(&serverName, "name", "", "display name (required)")
	serverAddCmd.Flags().StringVar(&serverHost, "host", "", "host to monitor (required)")
	serverAddCmd.Flags().IntVar(&serverPort, "port", 22, "port to monitor")
	serverUpdateCmd.Flags().StringVar(&serverName, "name", "", "new display name")
	serverUpdateCmd.Flags().StringVar(&serverHost, "host", "", "new host")
	serverUpdateCmd.Flags().IntVar(&serverPort, "port", 0, "new port")

	serverCmd.AddCommand(serverAddCmd)
	serverCmd.AddCommand(serverUpdateCmd)
	serverCmd.AddCommand(serverRemoveCmd)
	rootCmd.AddCommand(serverCmd)
}

func runServerAdd(cmd *cobra.Command, _ []string) error {
	if serverName == "" || serverHost == "" {
		return cmd.Help()
	}
	return enqueueAction(cmd, domain.KindAddServer, &domain.AddServerPayload{
		Name: serverName,
		Host: serverHost,
		Port: serverPort,
	})
}

func runServerUpdate(cmd *cobra.Command, args []string) error {
	return enqueueAction(cmd, domain.KindUpdateServer, &domain.UpdateServerPayload{
		ServerID: args[0],
		Name:     serverName,
		Host:     serverHost,
		Port:     serverPort,
	})
}

func runServerRemove(cmd *cobra.Command, args []string) error {
	return enqueueAction(cmd, domain.KindRemoveServer, &domain.RemoveServerPayload{
		ServerID: args[0],
	})
}
