package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitalservices/queue-service/internal/database"
	"github.com/digitalservices/queue-service/internal/handlers"
	httpclient "github.com/digitalservices/queue-service/internal/http"
	"github.com/digitalservices/queue-service/internal/queue"
	"github.com/digitalservices/queue-service/internal/store"
)

var enqueueServer string

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Print the estimated queue wait in hours",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := store.NewPostgres(database.Pool()).CountWaiting(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%d entries waiting, about %d hours\n", n, queue.EstimateWaitHours(n))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the queue schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(cmd.Context(), database.Pool()); err != nil {
			return err
		}
		logger.Info().Msg("Schema applied")
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <request.json>",
	Short: "Enqueue a process through a running service",
	Long: `Send an enqueue request, read from a file or "-" for stdin, to the
/queue/enqueue route of a running service. The service writes the side file,
so its storage must be reachable from the service host.`,
	Example: `  queuectl enqueue request.json --server http://queue.local:3000`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEnqueue,
}

func init() {
	rootCmd.AddCommand(estimateCmd, migrateCmd, enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueServer, "server", "http://localhost:3000", "Base URL of the queue service")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	var (
		body []byte
		err  error
	)
	if args[0] == "-" {
		var buf bytes.Buffer
		_, err = buf.ReadFrom(os.Stdin)
		body = buf.Bytes()
	} else {
		body, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var req handlers.EnqueueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("invalid enqueue request: %w", err)
	}
	if _, err := queue.ParseAdditionalData(req.AdditionalData); err != nil {
		return err
	}

	url := strings.TrimRight(enqueueServer, "/") + "/queue/enqueue"
	resp, err := httpclient.NewClientDefault().PostJSON(cmd.Context(), url, req, nil)
	if err != nil && httpclient.StatusCode(err) != http.StatusBadRequest {
		return err
	}

	var out handlers.EnqueueResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("rejected by service: %s", out.Message)
	}
	fmt.Printf("%s (id %d)\n", out.Message, out.ID)
	return nil
}
