package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start the background workers that turn queued raw messages into expenses.`,
}

var triggerWorkerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start the raw message trigger worker",
	Long:  `Consume raw message ids from the queue, classify each message and commit the resulting expense. Also runs the replay and reconcile jobs.`,
	Run: func(cmd *cobra.Command, args []string) {
		startTriggerWorker()
	},
}

var (
	maxWorkers     int
	jobQueueSize   int
	workerPoolSize int
)

func startTriggerWorker() {
	cfg, lg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg, lg)
	if err != nil {
		lg.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}

	if cfg.Queue.Driver != "redis" {
		lg.Warn("trigger worker running on the memory queue; only replayed messages will reach it")
	}

	if deps.Redis != nil {
		recovered, err := deps.Redis.Recover(ctx)
		if err != nil {
			lg.Error("failed to recover in-flight deliveries", "error", err)
		} else if recovered > 0 {
			lg.Info("recovered in-flight deliveries", "count", recovered)
		}
	}

	wait := startPipeline(ctx, deps, trigger.PoolConfig{
		MaxWorkers:     getIntFlag(maxWorkers, cfg.Worker.MaxWorkers),
		JobQueueSize:   getIntFlag(jobQueueSize, cfg.Worker.JobQueueSize),
		WorkerPoolSize: getIntFlag(workerPoolSize, cfg.Worker.WorkerPoolSize),
	})

	lg.Info("trigger worker is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	lg.Info("received signal, shutting down trigger worker")

	wait()
	deps.Close(context.Background())
	lg.Info("trigger worker shutdown complete")
}

// startPipeline runs the queue consumer with the replay and reconcile jobs
// until ctx is cancelled. The returned func blocks until all three stop.
func startPipeline(ctx context.Context, deps *Dependencies, pool trigger.PoolConfig) func() {
	cfg := deps.Config
	runner := trigger.NewRunner(deps.Queue, deps.Processor, pool, cfg.Worker.RetryBackoff, deps.Logger)

	deps.Logger.Info("starting trigger pipeline",
		"queue_driver", cfg.Queue.Driver,
		"max_workers", pool.MaxWorkers,
		"job_queue_size", pool.JobQueueSize,
		"worker_pool_size", pool.WorkerPoolSize)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); !isShutdown(err) {
			deps.Logger.Error("trigger runner stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		deps.Replayer.Run(ctx, cfg.Worker.ReplayInterval)
	}()
	go func() {
		defer wg.Done()
		deps.Reconciler.Run(ctx, cfg.Worker.ReconcileInterval)
	}()
	return wg.Wait
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	triggerWorkerCmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Maximum number of workers (overrides config)")
	triggerWorkerCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Job queue buffer size (overrides config)")
	triggerWorkerCmd.Flags().IntVar(&workerPoolSize, "worker-pool-size", 0, "Worker pool channel size (overrides config)")

	workerCmd.AddCommand(triggerWorkerCmd)
}
