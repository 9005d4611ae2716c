package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahrdadan/rodplus/internal/api"
	"github.com/ahrdadan/rodplus/internal/browser"
	"github.com/ahrdadan/rodplus/internal/config"
	"github.com/ahrdadan/rodplus/internal/natsd"
	"github.com/ahrdadan/rodplus/internal/queue"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, st.cfg, st.logger)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "host to bind the server")
	flags.Int("port", 0, "port to bind the server")
	flags.String("base-url", "", "base URL used in job and webhook links")
	flags.String("browser-bin", "", "Chrome binary to launch")
	flags.String("remote-url", "", "attach to a running browser at this CDP endpoint")
	flags.Bool("install-chrome", false, "download Chromium when no binary is configured")
	flags.Bool("nats", true, "enable the NATS job queue")
	flags.String("nats-url", "", "NATS server URL")

	bindFlag(flags, "host", "server.host")
	bindFlag(flags, "port", "server.port")
	bindFlag(flags, "base-url", "server.base_url")
	bindFlag(flags, "browser-bin", "browser.bin")
	bindFlag(flags, "remote-url", "browser.remote_url")
	bindFlag(flags, "install-chrome", "browser.install")
	bindFlag(flags, "nats", "nats.enabled")
	bindFlag(flags, "nats-url", "nats.url")
	return cmd
}

// startBrowser resolves the Chrome binary and starts a browser manager.
func startBrowser(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*browser.Manager, error) {
	bin := cfg.Bin
	if bin == "" && cfg.RemoteURL == "" && cfg.Install {
		logger.Info("Installing Chromium", zap.Int("revision", cfg.Revision))
		path, err := browser.InstallChrome(ctx, cfg.Revision)
		if err != nil {
			return nil, err
		}
		bin = path
	}

	manager := browser.NewManager(browser.Options{
		BinPath:   bin,
		RemoteURL: cfg.RemoteURL,
		Headless:  cfg.Headless,
		NoSandbox: cfg.NoSandbox,
		Logger:    logger,
	})
	if err := manager.Start(); err != nil {
		return nil, err
	}
	return manager, nil
}

// startQueue connects to NATS and starts the job workers.
func startQueue(ctx context.Context, cfg *config.Config, client browser.Client, logger *zap.Logger) (*natsd.Server, *queue.Manager, error) {
	server := natsd.NewServer(natsd.Config{
		URL:          cfg.Nats.URL,
		BinPath:      cfg.Nats.Bin,
		StoreDir:     cfg.Nats.StoreDir,
		StartTimeout: cfg.Nats.StartTimeout,
		Logger:       logger,
	})
	// The spawned nats-server must outlive the signal context so the queue
	// can nak in-flight messages during shutdown.
	if err := server.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, nil, err
	}

	manager, err := queue.NewManager(server.GetJetStream(), queue.ManagerOptions{
		Logger:          logger,
		Notifier:        queue.NewNotifier(cfg.Server.BaseURL, cfg.Queue.WebhookTimeout, logger),
		CleanupInterval: cfg.Queue.CleanupInterval,
	})
	if err != nil {
		_ = server.Stop()
		return nil, nil, fmt.Errorf("failed to create queue manager: %w", err)
	}

	if err := manager.Start(queue.NewStepProcessor(client, logger)); err != nil {
		_ = server.Stop()
		return nil, nil, fmt.Errorf("failed to start queue processor: %w", err)
	}
	return server, manager, nil
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               config.AppName,
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	return app
}

func routeConfig(cfg *config.Config) api.RouteConfig {
	return api.RouteConfig{
		RateLimitRequests: cfg.Security.RateLimitRequests,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
		RateLimitBurst:    cfg.Security.RateLimitBurst,
		IdempotencyTTL:    cfg.Security.IdempotencyTTL,
		BaseURL:           cfg.Server.BaseURL,
		MaxBodySize:       cfg.Server.MaxBodySize,
		AllowedIPs:        cfg.Security.AllowedIPs,
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	logger.Info("Starting rodplus", zap.String("version", config.Version))

	browserManager, err := startBrowser(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := browserManager.Stop(); err != nil {
			logger.Warn("Failed to stop browser", zap.Error(err))
		}
	}()

	var jobs api.JobQueue
	if cfg.Nats.Enabled {
		natsServer, queueManager, err := startQueue(ctx, cfg, browserManager, logger)
		if err != nil {
			return err
		}
		// Deferred in reverse: workers stop before their NATS connection.
		defer func() { _ = natsServer.Stop() }()
		defer queueManager.Stop()
		jobs = queueManager
		logger.Info("Job queue enabled", zap.String("nats_url", cfg.Nats.URL))
	}

	app := newApp()
	routes := api.SetupRoutes(app, browserManager, jobs, routeConfig(cfg), logger)
	defer routes.Close()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Addr()), zap.String("endpoint", browserManager.GetEndpoint()))
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("Error during shutdown", zap.Error(err))
	}
	<-errCh
	return nil
}
