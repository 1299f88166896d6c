package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/oneloop/pkg/config"
	"github.com/cuemby/oneloop/pkg/cubature"
	"github.com/cuemby/oneloop/pkg/log"
	"github.com/cuemby/oneloop/pkg/metrics"
	"github.com/cuemby/oneloop/pkg/scheduler"
	"github.com/cuemby/oneloop/pkg/storage"
	"github.com/cuemby/oneloop/pkg/wire"
	"github.com/cuemby/oneloop/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "oneloopd",
	Short: "oneloopd drives a one-loop cosmological perturbation-theory compute run",
	Long: `oneloopd tokenizes a configured sweep of models, redshifts,
wavenumbers, and cutoffs, then drives the seven-phase master/worker
pipeline (filter, growth, matsubara, loop-kernel, assemble, multipole,
counterterm) against a content-addressed store, skipping anything
already computed.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"oneloopd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Run the full pipeline against a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var metricsAddr string

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := uuid.New().String()
	log.Logger = log.Logger.With().Str("run_id", runID).Logger()
	log.Logger.Info().Str("config", args[0]).Msg("run starting")

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	masterConns := make([]wire.Conn, cfg.Workers)
	workers := make([]*worker.Worker, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		masterConn, workerConn := wire.NewChannelPair()
		masterConns[i] = masterConn
		workers[i] = worker.NewWorker(worker.Config{ID: i + 1, Conn: workerConn, Routine: cubature.DefaultRoutine})
	}

	errCh := make(chan error, len(workers))
	for _, w := range workers {
		go func(w *worker.Worker) { errCh <- w.Run(ctx) }(w)
	}

	s := scheduler.NewScheduler(store, masterConns)
	runErr := s.Run(ctx, cfg)
	if runErr != nil {
		// A fatal phase error leaves workers parked on their control
		// channels; cancelling the context is what unblocks them.
		cancel()
	}

	for range workers {
		if err := <-errCh; err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return log.RouteErr(log.Logger, runErr, "run finished with error")
	}
	log.Logger.Info().Msg("run complete")
	return nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <config.yaml>",
	Short: "Print the row count of every table in the configured store",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-28s %d\n", name, stats[name])
	}
	return nil
}
