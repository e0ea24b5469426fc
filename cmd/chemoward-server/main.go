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

	"github.com/chemoward/api/internal/config"
	"github.com/chemoward/api/internal/domain/admin"
	"github.com/chemoward/api/internal/domain/patient"
	"github.com/chemoward/api/internal/domain/scheduling"
	"github.com/chemoward/api/internal/platform/auth"
	"github.com/chemoward/api/internal/platform/blobstore"
	"github.com/chemoward/api/internal/platform/db"
	"github.com/chemoward/api/internal/platform/logging"
	"github.com/chemoward/api/internal/platform/middleware"
	"github.com/chemoward/api/migrations"
)

// jsonBodyLimit caps every non-multipart request body.
const jsonBodyLimit = 1 << 20

func main() {
	rootCmd := &cobra.Command{
		Use:   "chemoward-server",
		Short: "Chemotherapy ward API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

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

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{
		Level:         cfg.LogLevel,
		Development:   cfg.IsDev(),
		File:          cfg.LogFile,
		MaxSizeMB:     cfg.LogMaxSizeMB,
		MaxBackups:    cfg.LogMaxBackups,
		MaxAgeDays:    cfg.LogMaxAgeDays,
		CompressFiles: true,
	})
}

// openPool loads config and connects to the database. Callers close the pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := blobstore.NewFileStore(cfg.UploadPath, cfg.MaxUploadBytes())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	e, adminSvc := newServer(cfg, logger, pool, blobs)

	if n, err := adminSvc.CountUsers(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not count users")
	} else if n == 0 {
		logger.Warn().Msg("no user accounts exist; create an admin with `chemoward-server user create --role ADMIN`")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("strict_transitions", cfg.StrictTransitions).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with every route and middleware
// mounted. It returns the admin service for startup checks.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, blobs blobstore.Store) (*echo.Echo, *admin.Service) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger, cfg.IsProduction())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{"X-Total-Count", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(jsonBodyLimit, cfg.MaxUploadBytes()))

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.NewHealthChecker(pool, logger).Handler())

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(tokens, auth.AuthSkipper))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.Audit(logger))

	// -- Patients --
	patientSvc := patient.NewService(patient.NewRepoPG(pool), blobs, db.NewTxRunner(pool), logger)
	patient.NewHandler(patientSvc, logger).RegisterRoutes(api)

	// -- Appointments --
	workflow := scheduling.NewWorkflow(cfg.StrictTransitions)
	schedSvc := scheduling.NewService(scheduling.NewRepoPG(pool), patientSvc, workflow, logger)
	scheduling.NewHandler(schedSvc, logger).RegisterRoutes(api)

	// -- Users and links --
	adminSvc := admin.NewService(admin.NewUserRepoPG(pool), admin.NewLinkRepoPG(pool), tokens, logger)
	admin.NewHandler(adminSvc, logger).RegisterRoutes(api)

	return e, adminSvc
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	newMigrator := func(cmd *cobra.Command, pool *pgxpool.Pool) (*db.Migrator, error) {
		schema, _ := cmd.Flags().GetString("schema")
		dir, _ := cmd.Flags().GetString("dir")
		if dir != "" {
			return db.NewMigrator(pool, os.DirFS(dir), schema)
		}
		return db.NewMigrator(pool, migrations.FS, schema)
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := newMigrator(cmd, pool)
			if err != nil {
				return err
			}
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := newMigrator(cmd, pool)
			if err != nil {
				return err
			}
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format(time.RFC3339)
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "public", "Target schema for migrations")
		c.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
		cmd.AddCommand(c)
	}
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account (use this to bootstrap the first ADMIN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := registerRequestFromFlags(cmd)
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := admin.NewService(
				admin.NewUserRepoPG(pool), admin.NewLinkRepoPG(pool),
				auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), newLogger(cfg),
			)
			u, err := svc.Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %d (%s, %s)\n", u.ID, u.Email, u.Role)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password")
	createCmd.Flags().String("role", auth.RoleAdmin, "ADMIN, DOCTOR or NURSE")
	cmd.AddCommand(createCmd)
	return cmd
}

func registerRequestFromFlags(cmd *cobra.Command) (admin.RegisterRequest, error) {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")
	if name == "" || email == "" || password == "" {
		return admin.RegisterRequest{}, fmt.Errorf("--name, --email and --password are required")
	}
	return admin.RegisterRequest{Name: name, Email: email, Password: password, Role: role}, nil
}
