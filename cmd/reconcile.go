package cmd

import (
	"context"
	"fmt"
	"os"

	rawMessagePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	triggerPostgres "github.com/frahmantamala/sms-expense-pipeline/internal/trigger/postgres"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Point orphaned raw messages at their committed expense",
	Long:  `Find expenses whose raw message is still unprocessed and mark those raw messages committed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, lg, err := setup()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			lg.Error("failed to init db", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		gormDB, err := initGorm(db, cfg.Observability.Logging.Level)
		if err != nil {
			lg.Error("failed to init gorm", "error", err)
			os.Exit(1)
		}

		reconciler := trigger.NewReconciler(
			triggerPostgres.NewOrphanStore(db),
			rawMessagePostgres.NewRawMessageRepository(gormDB),
			cfg.Worker.ReplayBatch,
			lg,
		)
		n, err := reconciler.ReconcileOnce(context.Background())
		if err != nil {
			lg.Error("reconcile failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Repaired %d raw messages\n", n)
	},
}
