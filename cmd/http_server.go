package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal/auth"
	"github.com/frahmantamala/sms-expense-pipeline/internal/expense"
	expensePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/expense/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/middleware"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport/rest"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server that accepts forwarded SMS and serves expenses`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

var embeddedWorker bool

func startHTTPServer() {
	cfg, lg, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx, cfg, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	router, err := setupRoutes(ctx, deps)
	if err != nil {
		lg.Error("failed to set up routes", "error", err)
		deps.Close(context.Background())
		os.Exit(1)
	}

	// The memory queue only lives inside this process, so its consumer must too.
	waitWorker := func() {}
	if embeddedWorker || cfg.Queue.Driver == "memory" {
		waitWorker = startPipeline(ctx, deps, trigger.PoolConfig{
			MaxWorkers:     cfg.Worker.MaxWorkers,
			JobQueueSize:   cfg.Worker.JobQueueSize,
			WorkerPoolSize: cfg.Worker.WorkerPoolSize,
		})
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	lg.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("Received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed to start", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server shutdown error", "error", err)
	}

	waitWorker()
	deps.Close(shutdownCtx)
	lg.Info("Server stopped")
}

func setupRoutes(ctx context.Context, deps *Dependencies) (*chi.Mux, error) {
	cfg := deps.Config
	lg := deps.Logger
	base := transport.NewBaseHandler(lg)

	authService := auth.NewService(
		auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration),
		cfg.Security.AccessTokenDuration,
	)
	rawMessageService := rawmessage.NewService(deps.RawMessages, deps.EventBus, lg)
	expenseService := expense.NewService(
		expensePostgres.NewExpenseRepository(deps.Gorm),
		deps.Sources,
		cfg.Pipeline.NoteMaxLength,
		lg,
	)

	opts := rest.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}
	if cfg.Server.OpenAPIPath != "" {
		doc, err := middleware.LoadOpenAPI(ctx, cfg.Server.OpenAPIPath)
		if err != nil {
			return nil, err
		}
		opts.RequestValidator, err = middleware.RequestValidator(doc, lg)
		if err != nil {
			return nil, err
		}
	}

	var extra map[string]rest.Pinger
	if deps.Redis != nil {
		extra = map[string]rest.Pinger{"redis": rest.PingFunc(deps.Redis.Ping)}
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, opts,
		rest.NewHealthHandler(deps.DB.DB, extra),
		auth.NewHandler(base, authService),
		rawmessage.NewHandler(base, rawMessageService, deps.Replayer),
		expense.NewHandler(base, expenseService),
		source.NewHandler(base, deps.Sources),
		lg,
	)
	return router, nil
}

func init() {
	httpServerCmd.Flags().BoolVar(&embeddedWorker, "with-worker", false, "run the trigger worker inside the server process")
}
