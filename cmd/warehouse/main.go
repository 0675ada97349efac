package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskfabric/warehouse/internal/config"
	"github.com/taskfabric/warehouse/internal/db"
	"github.com/taskfabric/warehouse/internal/etl"
	"github.com/taskfabric/warehouse/internal/export"
	"github.com/taskfabric/warehouse/internal/metrics"
	"github.com/taskfabric/warehouse/internal/middleware"
	"github.com/taskfabric/warehouse/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath     string
	migrationsPath string
)

func main() {
	root := &cobra.Command{
		Use:   "warehouse",
		Short: "Task analytics warehouse ETL service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().StringVar(&migrationsPath, "migrations", "./migrations", "path to migration files")

	root.AddCommand(serveCmd(), runCmd(), migrateCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.Sugar(), nil
}

// app bundles everything a command needs once the database is up.
type app struct {
	cfg          config.Config
	conn         *db.Connection
	log          *zap.SugaredLogger
	metrics      *metrics.Metrics
	ledger       *etl.Ledger
	orchestrator *etl.Orchestrator
	exporter     *export.Service
}

func buildApp(ctx context.Context, withMetrics bool) (*app, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var m *metrics.Metrics
	if withMetrics {
		m = metrics.NewDefault()
	}

	batchRepo := repository.NewBatchLogRepository(conn.Pool)
	auditRepo := repository.NewAuditLogRepository(conn.Pool)
	sourceRepo := repository.NewSourceRepository(conn.Pool)
	userDims := repository.NewUserDimRepository(conn)
	projectDims := repository.NewProjectDimRepository(conn)
	statusDims := repository.NewStatusDimRepository(conn)
	priorityDims := repository.NewPriorityDimRepository(conn)
	dateDims := repository.NewDateDimRepository(conn.Pool)
	taskFacts := repository.NewTaskFactRepository(conn.Pool)
	timeLogFacts := repository.NewTimeLogFactRepository(conn.Pool)
	aggRepo := repository.NewAggregateRepository(conn)

	ledger := etl.NewLedger(batchRepo)
	recorder := etl.NewRecorder(auditRepo, log, m)
	dimensions := etl.NewDimensionVersioner(sourceRepo, userDims, projectDims, statusDims, priorityDims, dateDims, recorder, log)
	facts := etl.NewFactSynchronizer(sourceRepo, userDims, projectDims, statusDims, priorityDims, taskFacts, timeLogFacts, recorder, log)
	aggregates := etl.NewAggregateBuilder(aggRepo, recorder, log)
	orchestrator := etl.NewOrchestrator(
		ledger, dimensions, facts, aggregates, recorder, sourceRepo, m, log,
		cfg.ETL.SourceSystem, cfg.ETL.DateHorizonDays,
	)

	return &app{
		cfg:          cfg,
		conn:         conn,
		log:          log,
		metrics:      m,
		ledger:       ledger,
		orchestrator: orchestrator,
		exporter:     export.NewService(batchRepo, auditRepo),
	}, nil
}

func (a *app) close() {
	a.conn.Close()
	_ = a.log.Sync()
}

// ensureTimeLogPartitions reconciles the fact_time_logs partition registry up
// to the configured horizon.
func (a *app) ensureTimeLogPartitions(ctx context.Context) error {
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, a.cfg.ETL.DateHorizonDays)
	partitions := db.MonthlyPartitions("fact_time_logs", now.AddDate(-1, 0, 0), horizon)
	return db.EnsurePartitions(ctx, a.conn.Pool, partitions)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			if err := db.RunMigrations(a.cfg.Database, migrationsPath); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			if err := a.ensureTimeLogPartitions(ctx); err != nil {
				return fmt.Errorf("ensure partitions: %w", err)
			}

			corsHandler := cors.New(cors.Options{
				AllowedOrigins:   a.cfg.Server.AllowedOrigins,
				AllowCredentials: true,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
			})
			logged := middleware.Logging(a.log)

			mux := http.NewServeMux()
			mux.Handle("/etl/", corsHandler.Handler(logged(etl.NewHTTPHandler(a.orchestrator, a.ledger))))
			mux.Handle("/exports/report", corsHandler.Handler(logged(export.NewHTTPHandler(a.exporter))))
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := a.conn.Pool.Ping(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})

			server := &http.Server{
				Addr:         a.cfg.Server.Addr,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Minute, // batch runs block the request
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				a.log.Infow("server started", "addr", a.cfg.Server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Fatalw("server failed", "error", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			a.log.Infow("shutting down")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func runCmd() *cobra.Command {
	var tenantRaw string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ETL batch and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ensureTimeLogPartitions(ctx); err != nil {
				return fmt.Errorf("ensure partitions: %w", err)
			}

			if tenantRaw == "" {
				records, err := a.orchestrator.RunAll(ctx)
				if err != nil {
					return err
				}
				for _, record := range records {
					a.log.Infow("batch finished", "batch_id", record.BatchID, "tenant_id", record.TenantID, "status", record.Status)
				}
				return nil
			}

			tenantID, err := uuid.Parse(tenantRaw)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			record, err := a.orchestrator.RunForTenant(ctx, tenantID)
			if err != nil {
				return err
			}
			a.log.Infow("batch finished", "batch_id", record.BatchID, "tenant_id", record.TenantID, "status", record.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantRaw, "tenant", "", "tenant id to load (all tenants when empty)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return db.RunMigrations(cfg.Database, migrationsPath)
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		outPath string
		hours   int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the operations report workbook to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			if outPath == "" {
				outPath = a.exporter.FileName()
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create report file: %w", err)
			}
			defer f.Close()

			if err := a.exporter.WriteReport(ctx, f, hours); err != nil {
				return err
			}
			a.log.Infow("report written", "path", outPath, "hours", hours)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file path (defaults to a timestamped name)")
	cmd.Flags().IntVar(&hours, "hours", 24, "trailing window for included batches")
	return cmd
}
