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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/clinicq/clinicq/internal/config"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicq-server",
		Short: "Clinic queue and booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(orgCmd())

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

// withPool loads configuration and opens a pool for a one-shot command.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

// targetOrganizations returns the --org flag when given, otherwise every
// registered organization.
func targetOrganizations(ctx context.Context, cmd *cobra.Command, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	if raw, _ := cmd.Flags().GetString("org"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("--org must be a UUID: %w", err)
		}
		return []uuid.UUID{id}, nil
	}
	return auth.NewMembershipStore(pool).OrganizationIDs(ctx)
}

func organizationLister(cmd *cobra.Command, pool *pgxpool.Pool) db.OrganizationLister {
	return func(ctx context.Context) ([]uuid.UUID, error) {
		return targetOrganizations(ctx, cmd, pool)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending shared and organization migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				results, err := db.MigrateAll(ctx, pool, migrationsDir(cmd, cfg), organizationLister(cmd, pool))
				for _, r := range results {
					fmt.Printf("%-40s applied %d migration(s)\n", r.Schema, r.Applied)
				}
				return err
			})
		},
	}
	upCmd.Flags().String("org", "", "Only migrate this organization")
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				results, err := db.StatusAll(ctx, pool, migrationsDir(cmd, cfg), organizationLister(cmd, pool))
				for _, r := range results {
					printStatus(r)
				}
				return err
			})
		},
	}
	statusCmd.Flags().String("org", "", "Only show this organization")
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(r db.SchemaMigrations) {
	fmt.Printf("\nMigration status for schema: %s\n", r.Schema)
	fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Println("---------- ---------------------------------------- ---------- --------------------")
	for _, s := range r.Statuses {
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
}

func orgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register an organization and create its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			owner, _ := cmd.Flags().GetString("owner")
			orgID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--id must be a UUID")
			}

			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				dir := migrationsDir(cmd, cfg)
				if _, err := db.MigrateShared(ctx, pool, dir); err != nil {
					return err
				}

				store := auth.NewMembershipStore(pool)
				if err := store.CreateOrganization(ctx, orgID, name); err != nil {
					return err
				}
				schema, err := db.CreateOrganizationSchema(ctx, pool, orgID, db.TenantMigrationsDir(dir))
				if err != nil {
					return err
				}
				if owner != "" {
					if err := store.AddMember(ctx, orgID, owner, auth.RoleOwner); err != nil {
						return err
					}
				}
				fmt.Printf("Organization %s ready in schema %s\n", orgID, schema)
				return nil
			})
		},
	}
	createCmd.Flags().String("id", "", "Organization UUID")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("owner", "", "User id granted the owner role")
	createCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	_ = createCmd.MarkFlagRequired("id")
	cmd.AddCommand(createCmd)

	memberCmd := &cobra.Command{
		Use:   "add-member",
		Short: "Grant a user a role in an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("id")
			user, _ := cmd.Flags().GetString("user")
			rawRole, _ := cmd.Flags().GetString("role")
			role := auth.Role(rawRole)
			orgID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--id must be a UUID")
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				if err := auth.NewMembershipStore(pool).AddMember(ctx, orgID, user, role); err != nil {
					return err
				}
				fmt.Printf("%s is now %s in %s\n", user, role, orgID)
				return nil
			})
		},
	}
	memberCmd.Flags().String("id", "", "Organization UUID")
	memberCmd.Flags().String("user", "", "User id (token subject)")
	memberCmd.Flags().String("role", string(auth.RoleReceptionist), "owner, admin, doctor, receptionist or patient")
	_ = memberCmd.MarkFlagRequired("id")
	cmd.AddCommand(memberCmd)

	removeCmd := &cobra.Command{
		Use:   "remove-member",
		Short: "Revoke a user's membership in an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("id")
			user, _ := cmd.Flags().GetString("user")
			orgID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--id must be a UUID")
			}
			if user == "" {
				return fmt.Errorf("--user is required")
			}
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				if err := auth.NewMembershipStore(pool).RemoveMember(ctx, orgID, user); err != nil {
					return err
				}
				fmt.Printf("%s removed from %s\n", user, orgID)
				return nil
			})
		},
	}
	removeCmd.Flags().String("id", "", "Organization UUID")
	removeCmd.Flags().String("user", "", "User id (token subject)")
	_ = removeCmd.MarkFlagRequired("id")
	cmd.AddCommand(removeCmd)

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("queue events relayed through redis")
	}

	srv := newServer(cfg, pool, rdb, prometheus.NewRegistry(), logger)
	if srv.broker != nil {
		go func() {
			if err := srv.broker.Run(ctx, nil); err != nil {
				logger.Error().Err(err).Msg("queue broker stopped")
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	if err := srv.outbox.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("queue events not flushed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
