package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/provisioning/api"
	"github.com/driftfs/driftfs/pkg/config"
	"github.com/driftfs/driftfs/pkg/directory/models"
	"github.com/driftfs/driftfs/pkg/directory/store"
)

// EnvAdminPassword overrides the bootstrap admin password from the config file.
const EnvAdminPassword = "DRIFTFS_ADMIN_PASSWORD"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DriftFS provisioning server",
	Long: `Start the provisioning API server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/driftfs/config.yaml.

Examples:
  # Start with the default config
  driftfs serve

  # Start with custom config file
  driftfs serve --config /etc/driftfs/config.yaml

  # Start with environment variable overrides
  DRIFTFS_LOGGING_LEVEL=DEBUG driftfs serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dirStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open directory store: %w", err)
	}

	if err := seedAdmin(ctx, dirStore, cfg); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	server, err := api.NewServer(cfg.API, dirStore)
	if err != nil {
		return err
	}
	server.SetShutdownTimeout(cfg.ShutdownTimeout)

	// Translate SIGINT/SIGTERM into context cancellation
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	return server.Start(ctx)
}

// seedAdmin creates the bootstrap admin user on first startup. The admin
// group itself is seeded by the store; global admin status is nothing more
// than membership in that group.
func seedAdmin(ctx context.Context, dirStore store.Store, cfg *config.Config) error {
	username := cfg.Admin.Username

	exists, err := dirStore.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	password := os.Getenv(EnvAdminPassword)
	if password == "" {
		password = cfg.Admin.Password
	}
	if password == "" {
		logger.Warn("no admin user present and no bootstrap password configured; skipping admin seeding",
			"username", username, "env_var", EnvAdminPassword)
		return nil
	}

	user := &models.User{
		Username: username,
		Email:    cfg.Admin.Email,
	}
	if _, err := dirStore.CreateUser(ctx, user, password); err != nil {
		// Another instance may have won the race
		if errors.Is(err, models.ErrDuplicateUser) {
			return nil
		}
		return err
	}

	if err := dirStore.AddUserToGroup(ctx, username, models.AdminGroup); err != nil {
		return err
	}

	logger.Info("bootstrap admin user created", "username", username)
	return nil
}
