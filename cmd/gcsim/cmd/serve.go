package cmd

import (
	"context"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engine-gc/internal/webui"
)

var (
	serveAddr    string
	serveDataDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded runs and snapshots over HTTP",
	Long: `Serve starts an HTTP server with a JSON view of the run history:

  GET    /api/runs               list runs (?name, ?status, ?limit)
  GET    /api/runs/{id}          one run with its cycles
  DELETE /api/runs/{id}          forget a run
  GET    /api/runs/{id}/snapshot class table of a saved snapshot (?file, ?class, ?top)
  GET    /api/stats              cycle statistics over listed runs

Snapshots are read from the simulation output directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Example = `  # Serve on the default address
  ` + BinName() + ` serve

  # Serve snapshots from another output directory
  ` + BinName() + ` serve --addr :9090 -d ./out`

	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "Listen address")
	serveCmd.Flags().StringVarP(&serveDataDir, "data-dir", "d", "", "Simulation output directory (default sim.output_dir)")
}

func runServe(cmd *cobra.Command, args []string) error {
	repos, err := openRepositories()
	if err != nil {
		return err
	}
	defer repos.Close()

	dir := serveDataDir
	if dir == "" {
		dir = cfg.Sim.OutputDir
	}
	ln, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return err
	}
	server := webui.NewServer(repos.Runs, dir, logger).WithHealthCheck(repos.HealthCheck)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(sctx)
	}()

	return server.Serve(ln)
}
