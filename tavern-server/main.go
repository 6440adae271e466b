package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tavern/internal/api"
	"tavern/internal/auth"
	"tavern/internal/config"
	"tavern/internal/db"
	"tavern/internal/models"
)

const serverVersion = "0.1.0-dev"

type rootOptions struct {
	ConfigPath string
	Database   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tavern-server",
		Short:         "Discussion board server",
		Version:       serverVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "tavern.yaml", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite path or postgres:// URL (overrides config)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	return cmd
}

// openDatabase loads the config, opens the database it names and brings
// the schema up to date.
func openDatabase(cmd *cobra.Command, opts *rootOptions) (*db.DB, config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, cfg, nil, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	database, err := db.Open(cfg.Database, db.WithLogger(logger), db.WithLimits(cfg.Limits))
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ApplyMigrations(cmd.Context(), database); err != nil {
		database.Close()
		return nil, cfg, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return database, cfg, logger, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr, adminKeyOut string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, cfg, logger, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			if addr != "" {
				cfg.Addr = addr
			}
			if adminKeyOut != "" {
				cfg.AdminKeyOut = adminKeyOut
			}
			if cfg.AdminKeyOut != "" {
				adminName, err := db.EnsureBootstrapAdmin(cmd.Context(), database, cfg.AdminKeyOut)
				if err != nil {
					return fmt.Errorf("bootstrap admin: %w", err)
				}
				if adminName != "" {
					logger.Info("bootstrap admin created", "username", adminName, "key_file", cfg.AdminKeyOut)
				}
			}

			server := &http.Server{
				Addr:        cfg.Addr,
				Handler:     api.NewRouter(database, serverVersion, logger),
				ReadTimeout: cfg.ReadTimeout,
				IdleTimeout: cfg.IdleTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownDone := make(chan struct{})
			go func() {
				defer close(shutdownDone)
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("graceful shutdown failed", "error", err)
				}
			}()

			logger.Info("tavern-server listening", "addr", server.Addr, "dialect", database.Dialect().String())
			err = server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			stop()
			<-shutdownDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&adminKeyOut, "admin-key-out", "", "write bootstrap admin API key to this file if no admin exists")
	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()
			version, err := db.SchemaVersion(cmd.Context(), database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var from, as string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create categories, forums and seed topics from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(from) == "" {
				return errors.New("missing --from")
			}
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			actor, err := importActor(cmd.Context(), database, as)
			if err != nil {
				return err
			}
			res, err := db.ImportStructureFile(cmd.Context(), database, actor, from)
			if err != nil {
				return err
			}
			printImportResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "path to structure YAML file")
	cmd.Flags().StringVar(&as, "as", "admin", "admin user the import runs as")
	return cmd
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories and forums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			actor, err := importActor(cmd.Context(), database, as)
			if err != nil {
				return err
			}
			res, err := db.ImportStructure(cmd.Context(), database, actor, db.DefaultStructure)
			if err != nil {
				return err
			}
			printImportResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "admin", "admin user the seed runs as")
	return cmd
}

func importActor(ctx context.Context, database *db.DB, username string) (models.Actor, error) {
	user, err := db.GetUserByUsername(ctx, database, username)
	if err != nil {
		if db.IsNotFound(err) {
			return models.Actor{}, fmt.Errorf("user %q not found; create it with \"user add\" first", username)
		}
		return models.Actor{}, err
	}
	if user.Role != models.RoleAdmin {
		return models.Actor{}, fmt.Errorf("user %q is not an admin", username)
	}
	return user.Actor(), nil
}

func printImportResult(cmd *cobra.Command, res db.ImportResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "created %d categories, %d forums, %d topics, %d replies\n",
		res.CategoriesCreated, res.ForumsCreated, res.TopicsCreated, res.RepliesCreated)
}

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare cached counters with the stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			drifts, err := db.VerifyAggregates(cmd.Context(), database)
			if err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "consistent")
				return nil
			}
			printDrifts(cmd, drifts)
			return fmt.Errorf("%d aggregates drifted", len(drifts))
		},
	}
}

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rewrite drifted counters from the stored posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			fixed, err := db.ReconcileAggregates(cmd.Context(), database)
			if err != nil {
				return err
			}
			printDrifts(cmd, fixed)
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d aggregates\n", len(fixed))
			return nil
		},
	}
}

func printDrifts(cmd *cobra.Command, drifts []db.Drift) {
	for _, d := range drifts {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s: stored %s, computed %s\n", d.Entity, d.ID, d.Field, d.Stored, d.Computed)
	}
}

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage board users",
	}

	var role string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.ValidRole(role) {
				return fmt.Errorf("invalid role %q", role)
			}
			database, _, _, err := openDatabase(cmd, opts)
			if err != nil {
				return err
			}
			defer database.Close()

			apiKey, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			if _, err := db.CreateUser(cmd.Context(), database, args[0], role, auth.HashAPIKey(apiKey)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), apiKey)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", models.RoleMember, "member, moderator or admin")

	cmd.AddCommand(add)
	return cmd
}
