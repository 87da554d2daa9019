// Package cli wires the sync engine behind a cobra command tree. The
// engine is built lazily so informational commands (version, config)
// work without a reachable backend or a writable data directory.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sams-labs/synckit/internal/adapters/driven/config/file"
	"github.com/sams-labs/synckit/internal/adapters/driven/connectivity"
	"github.com/sams-labs/synckit/internal/adapters/driven/keys"
	"github.com/sams-labs/synckit/internal/adapters/driven/storage/sqlite"
	"github.com/sams-labs/synckit/internal/adapters/driven/transport/httpjson"
	"github.com/sams-labs/synckit/internal/core/services"
	"github.com/sams-labs/synckit/internal/logger"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool

	configStore *file.Store
	settings    file.Settings

	engine *services.Orchestrator
	kv     *sqlite.KVStore
	prober *connectivity.Prober
)

var rootCmd = &cobra.Command{
	Use:   "synckit",
	Short: "Offline-first sync client for the alert monitoring backend",
	Long: `synckit queues alert and server operations while offline and drains
them to the backend when connectivity returns, keeping an encrypted
local cache of remote state for offline reads.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default ~/.synckit/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
}

// Execute runs the command tree and tears down whatever was built.
func Execute() error {
	defer shutdown()
	return rootCmd.Execute()
}

func loadSettings(_ *cobra.Command, _ []string) error {
	store, err := file.NewStore(cfgFile)
	if err != nil {
		return err
	}
	configStore = store

	settings, err = store.Load()
	if err != nil {
		return err
	}
	logger.SetVerbose(verbose || settings.Verbose)
	return nil
}

// getEngine builds the engine on first use and reuses it afterwards.
func getEngine(ctx context.Context) (*services.Orchestrator, error) {
	if engine != nil {
		return engine, nil
	}
	if settings.ServerURL == "" {
		return nil, fmt.Errorf("server_url is not configured; set it in %s", configStore.Path())
	}

	store, err := sqlite.NewKVStore(settings.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data store: %w", err)
	}
	kv = store

	keyProvider, err := keys.NewFileProvider("")
	if err != nil {
		kv.Close()
		return nil, err
	}

	healthURL := strings.TrimSuffix(settings.ServerURL, "/") + settings.HealthPath
	prober = connectivity.NewProber(healthURL, 0)

	eng, err := services.NewEngine(ctx, settings.Engine, services.EngineDeps{
		Store:        store,
		Transport:    httpjson.New(settings.ServerURL, nil),
		Connectivity: prober,
		Keys:         keyProvider,
	})
	if err != nil {
		prober.Close()
		kv.Close()
		return nil, err
	}
	engine = eng
	return engine, nil
}

func shutdown() {
	if engine != nil {
		if err := engine.Close(); err != nil {
			logger.Warn("Closing engine: %v", err)
		}
		engine = nil
	}
	if prober != nil {
		_ = prober.Close()
		prober = nil
	}
	if kv != nil {
		if err := kv.Close(); err != nil {
			logger.Warn("Closing data store: %v", err)
		}
		kv = nil
	}
}
