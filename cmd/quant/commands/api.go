package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/api"
	"github.com/wonny/factorlab/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the read-only query API",
	Long: `Serves the stored research tables over HTTP.

Endpoints:
  GET /health
  GET /metrics                         (METRICS_ENABLED=true)
  GET /api/calendar/next?date&shift
  GET /api/available?date
  GET /api/factors/{stage}/{class}?date
  GET /api/css?bgn&stp
  GET /api/icov?date

Example:
  go run ./cmd/quant api --port 8089`,
	RunE: runAPIServer,
}

var (
	apiPort  string
	apiRPS   float64
	apiBurst int
)

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (default PORT)")
	apiCmd.Flags().Float64Var(&apiRPS, "rps", 20, "requests per second across the API, 0 disables limiting")
	apiCmd.Flags().IntVar(&apiBurst, "burst", 40, "rate limiter burst")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	d, err := loadDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()
	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	query := handlers.NewQueryHandler(d.runner, d.cache, d.log)
	router := api.NewRouter(query, d.log, api.RouterOptions{
		RequestsPerSecond: apiRPS,
		Burst:             apiBurst,
		Metrics:           d.metrics,
	})
	server := api.New(d.cfg, d.log, router)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()
	fmt.Printf("✅ API listening on :%s (Ctrl+C to stop)\n", d.cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
