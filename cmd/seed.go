package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	sourcePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/source/postgres"
	"github.com/spf13/cobra"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the payment source catalogue",
	Long:  `Install the default payment sources the classifier may choose from.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, lg, err := setup()
		if err != nil {
			log.Fatal(err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db, cfg.Observability.Logging.Level)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		service := source.NewService(sourcePostgres.NewSourceRepository(gormDB), lg)
		n, err := service.Seed(context.Background(), source.DefaultSources, clearData)
		if err != nil {
			log.Fatalf("failed to seed payment sources: %v", err)
		}
		fmt.Printf("Seeded %d payment sources\n", n)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
}
