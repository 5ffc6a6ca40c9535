package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Reprocess raw messages that never settled",
	Long: `Reprocess one raw message by id, or one batch of every unprocessed message
past the grace period. Messages are processed in this process unless --enqueue
is set, in which case they are handed to the queue for the workers.`,
	Run: func(cmd *cobra.Command, args []string) {
		runReplay()
	},
}

var (
	replayID      string
	replayEnqueue bool
)

func runReplay() {
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
	defer deps.Close(context.Background())

	if replayID != "" {
		outcome, err := deps.Processor.Process(ctx, replayID)
		if err != nil {
			lg.Error("replay failed", "raw_message_id", replayID, "error", err)
			return
		}
		fmt.Printf("%s: %s", outcome.RawMessageID, outcome.State)
		if outcome.ExpenseID != "" {
			fmt.Printf(" expense=%s", outcome.ExpenseID)
		}
		if outcome.Error != nil {
			fmt.Printf(" error=%s (%s)", outcome.Error.Code, outcome.Error.Message)
		}
		if outcome.Skipped {
			fmt.Print(" (already settled)")
		}
		fmt.Println()
		return
	}

	replayer := deps.Replayer
	if replayEnqueue && cfg.Queue.Driver != "redis" {
		lg.Warn("--enqueue has no effect on the memory queue, processing here instead")
		replayEnqueue = false
	}
	if !replayEnqueue {
		replayer = trigger.NewReplayer(deps.RawMessages, trigger.DirectDispatch{Processor: deps.Processor}, trigger.ReplayConfig{
			Grace:       cfg.Worker.ReplayGrace,
			MaxAttempts: cfg.Worker.MaxAttempts,
			Batch:       cfg.Worker.ReplayBatch,
		}, lg)
	}

	n, err := replayer.ReplayOnce(ctx)
	if err != nil {
		lg.Error("replay failed", "error", err)
		return
	}
	fmt.Printf("Replayed %d raw messages\n", n)
}

func init() {
	replayCmd.Flags().StringVar(&replayID, "id", "", "raw message id to reprocess")
	replayCmd.Flags().BoolVar(&replayEnqueue, "enqueue", false, "hand messages to the queue instead of processing them here")
}
