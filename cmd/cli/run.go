package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitalservices/queue-service/internal/database"
	"github.com/digitalservices/queue-service/internal/dispatch"
	"github.com/digitalservices/queue-service/internal/events"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/http/ratelimit"
	"github.com/digitalservices/queue-service/internal/storage"
	"github.com/digitalservices/queue-service/internal/store"
)

var (
	runPriority bool
	runWait     time.Duration
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch a batch of registered entries",
	Long: `Claim a batch of Registered entries and fire each one at its technology
endpoint. The command waits up to --wait for the technologies to answer so
their responses are recorded before it exits.`,
	Example: `  queuectl run
  queuectl run --priority --wait 30s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := newDispatcher()
		result, err := d.Run(cmd.Context(), runPriority)
		if err != nil {
			return err
		}
		printBatch(result)
		return waitInFlight(d)
	},
}

var runNextCmd = &cobra.Command{
	Use:   "run-next",
	Short: "Forward finished entries to their next stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newDispatcher().RunNext(cmd.Context())
		if err != nil {
			return err
		}
		printBatch(result)
		return nil
	},
}

var runTechnologyCmd = &cobra.Command{
	Use:   "run-technology",
	Short: "Select entries for a technology worker and print them as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := newDispatcher().SelectForTechnology(cmd.Context(), runPriority)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println(dispatch.MessageTechnologyIdle)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, runNextCmd, runTechnologyCmd)

	runCmd.Flags().BoolVar(&runPriority, "priority", false, "Only dispatch entries with a priority above zero")
	runCmd.Flags().DurationVar(&runWait, "wait", 2*time.Minute, "How long to wait for technology responses")
	runTechnologyCmd.Flags().BoolVar(&runPriority, "priority", false, "Only select entries with a priority above zero")
	for _, c := range []*cobra.Command{runCmd, runNextCmd} {
		c.Flags().BoolVar(&runJSON, "json", false, "Print the batch result as JSON")
	}
}

// newDispatcher builds a dispatcher without event publishing
func newDispatcher() *dispatch.Dispatcher {
	client := httpclient.NewClient(ratelimit.Config{
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             1,
	})
	return dispatch.New(
		store.NewPostgres(database.Pool()),
		storage.NewLocalStorage(cfg.Storage.BaseDir),
		client,
		events.Nop{},
		logger,
		dispatch.ConfigFrom(cfg),
	)
}

func waitInFlight(d *dispatch.Dispatcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), runWait)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		return fmt.Errorf("technology requests still in flight after %s: %w", runWait, err)
	}
	return nil
}

func printBatch(result *dispatch.BatchResult) {
	if runJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	fmt.Printf("%s (batch %s)\n", result.Message, result.BatchID)
	if len(result.Results) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE ID\tPROCESS\tOUTCOME\tERROR")
	for _, r := range result.Results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.QueueID, r.ProcessID, r.Outcome, r.Error)
	}
	w.Flush()
}
