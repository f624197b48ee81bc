package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/digitalservices/queue-service/config"
	"github.com/digitalservices/queue-service/internal/applog"
	"github.com/digitalservices/queue-service/internal/database"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "queuectl",
	Short: "Queue Service CLI - operate the process queue",
	Long: `A CLI tool for operating the process queue outside the HTTP service.
It can trigger dispatch and next-stage passes, inspect the queue, apply the
schema and enqueue processes through a running service.`,
	PersistentPreRunE: persistentPreRun,
	SilenceUsage:      true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml or ./config.yaml)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}
}

// commands that open the queue database
var needsDB = map[string]bool{
	"run":            true,
	"run-next":       true,
	"run-technology": true,
	"estimate":       true,
	"migrate":        true,
}

// persistentPreRun initializes the logger and, when needed, the database
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	opts := applog.Options{Level: "info", Service: "queuectl"}
	if cfg != nil {
		opts.Level = cfg.Logging.Level
		opts.NoColor = cfg.Logging.NoColor
		opts.JSON = cfg.Logging.Format == "json"
	}
	var err error
	if logger, err = applog.New(opts); err != nil {
		return err
	}

	if !needsDB[cmd.Name()] {
		return nil
	}
	if cfg == nil {
		return fmt.Errorf("config required for %s command but not loaded", cmd.Name())
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}
	if err := database.Connect(context.Background(), cfg.Database); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	logger.Debug().Msg("Database connected")
	return nil
}

func main() {
	err := Execute()
	database.Close()
	if err != nil {
		os.Exit(1)
	}
}
