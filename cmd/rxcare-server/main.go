package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rxcare/rxcare/internal/config"
	"github.com/rxcare/rxcare/internal/domain/billing"
	"github.com/rxcare/rxcare/internal/domain/identity"
	"github.com/rxcare/rxcare/internal/domain/inventory"
	"github.com/rxcare/rxcare/internal/domain/prescription"
	"github.com/rxcare/rxcare/internal/domain/reconcile"
	"github.com/rxcare/rxcare/internal/platform/auth"
	"github.com/rxcare/rxcare/internal/platform/clock"
	"github.com/rxcare/rxcare/internal/platform/db"
	"github.com/rxcare/rxcare/internal/platform/middleware"
	"github.com/rxcare/rxcare/internal/platform/notification"
	"github.com/rxcare/rxcare/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rxcare-server",
		Short: "Pharmacy order fulfillment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default from config)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation jobs from the command line",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a reconciliation job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, _ := cmd.Flags().GetString("job")

			svc, pool, err := buildReconcileService()
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := context.Background()
			switch job {
			case "expired-bills":
				result, err := svc.RunExpiredBillReconciliation(ctx)
				if err != nil {
					return err
				}
				fmt.Println(result.Summary)
			case "low-stock":
				result, err := svc.RunLowStockScan(ctx)
				if err != nil {
					return err
				}
				fmt.Println(result.Summary)
			case "expiry":
				result, err := svc.RunExpiryScan(ctx)
				if err != nil {
					return err
				}
				fmt.Println(result.Summary)
			case "all":
				batch, err := svc.RunExpiredBillReconciliation(ctx)
				if err != nil {
					return err
				}
				fmt.Println(batch.Summary)
				for _, scan := range []func(context.Context) (*reconcile.ScanResult, error){
					svc.RunLowStockScan, svc.RunExpiryScan,
				} {
					result, err := scan(ctx)
					if err != nil {
						return err
					}
					fmt.Println(result.Summary)
				}
			default:
				return fmt.Errorf("unknown job %q (expected expired-bills, low-stock, expiry, or all)", job)
			}
			return nil
		},
	}
	runCmd.Flags().String("job", "all", "Job to run: expired-bills, low-stock, expiry, or all")
	cmd.AddCommand(runCmd)

	countCmd := &cobra.Command{
		Use:   "count",
		Short: "Show how many records the jobs would touch",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")

			svc, pool, err := buildReconcileService()
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := context.Background()
			pendingExpired, err := svc.CountPendingExpiredBills(ctx)
			if err != nil {
				return err
			}
			lowStock, err := svc.CountLowStock(ctx)
			if err != nil {
				return err
			}
			expiring, err := svc.CountExpiringWithin(ctx, days)
			if err != nil {
				return err
			}

			fmt.Printf("pending expired bills: %d\n", pendingExpired)
			fmt.Printf("low-stock medicines:   %d\n", lowStock)
			fmt.Printf("expiring within %dd:   %d\n", days, expiring)
			return nil
		},
	}
	countCmd.Flags().Int("days", 30, "Expiry horizon in days")
	cmd.AddCommand(countCmd)

	return cmd
}

// buildReconcileService wires the reconciliation service for one-shot CLI
// use, without the HTTP layer or the websocket hub.
func buildReconcileService() (*reconcile.Service, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	clk := clock.System()
	inventorySvc := inventory.NewService(inventory.NewMedicineRepoPG(pool), clk)
	prescriptionSvc := prescription.NewService(prescription.NewPrescriptionRepoPG(pool), inventorySvc, logger)
	billingSvc := billing.NewService(billing.NewBillRepoPG(pool), inventorySvc, clk, logger)
	prescriptionSvc.SetBillGenerator(billingSvc)
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool))
	notifier := notification.NewManager(notification.LogSender{}, nil)

	svc := reconcile.NewService(
		billingSvc, prescriptionSvc, inventorySvc, inventorySvc, identitySvc,
		notifier, db.NewTxRunner(pool), clk, logger,
		cfg.GracePeriodDays, cfg.ExpiryAlertDays)
	return svc, pool, nil
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevAuthMiddleware())
	default:
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain wiring. The prescription service receives the billing
	// service after construction to break the package cycle between
	// prescription review and bill generation.
	clk := clock.System()
	identitySvc := identity.NewService(identity.NewUserRepoPG(pool))
	inventorySvc := inventory.NewService(inventory.NewMedicineRepoPG(pool), clk)
	prescriptionSvc := prescription.NewService(prescription.NewPrescriptionRepoPG(pool), inventorySvc, logger)
	billingSvc := billing.NewService(billing.NewBillRepoPG(pool), inventorySvc, clk, logger)
	prescriptionSvc.SetBillGenerator(billingSvc)

	hub := websocket.NewHub(logger)
	notifier := notification.NewManager(notification.LogSender{}, hub)

	reconcileSvc := reconcile.NewService(
		billingSvc, prescriptionSvc, inventorySvc, inventorySvc, identitySvc,
		notifier, db.NewTxRunner(pool), clk, logger,
		cfg.GracePeriodDays, cfg.ExpiryAlertDays)

	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	inventory.NewHandler(inventorySvc).RegisterRoutes(apiV1)
	prescription.NewHandler(prescriptionSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	reconcile.NewHandler(reconcileSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifier).RegisterRoutes(apiV1)

	e.GET("/health", db.HealthHandler(pool))
	e.GET("/ws", websocket.Handler(hub))

	scheduler := reconcile.NewScheduler(reconcileSvc, time.Duration(cfg.ReconcileInterval)*time.Minute)
	scheduler.Start()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
