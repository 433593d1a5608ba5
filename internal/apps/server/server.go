// Copyright (c) 2025 Justin Cranford

// Package server is the hashrand-server application: cobra command wiring,
// composition root (config -> telemetry -> repository -> authflow ->
// handlers -> Fiber), and the process exit codes.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apihandler"
	"github.com/arkaitz-dev/hashrand-sub003/internal/apiserver"
	"github.com/arkaitz-dev/hashrand-sub003/internal/apperr"
	"github.com/arkaitz-dev/hashrand-sub003/internal/authflow"
	"github.com/arkaitz-dev/hashrand-sub003/internal/config"
	"github.com/arkaitz-dev/hashrand-sub003/internal/repository"
	"github.com/arkaitz-dev/hashrand-sub003/internal/sysinfo"
	"github.com/arkaitz-dev/hashrand-sub003/internal/telemetry"
)

// Build metadata, overridable via -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Exit codes
const (
	ExitOK          = 0
	ExitConfigError = 1
	ExitStorageInit = 2
	ExitPortBind    = 3
)

// Run is the process entry point behind cmd/hashrand-server. It returns the
// exit code instead of calling os.Exit so tests can drive it.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := &cobra.Command{
		Use:           "hashrand-server",
		Short:         "Password-less authentication core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	exitCode := ExitOK

	rootCmd.AddCommand(newStartCommand(&exitCode))
	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newHealthcheckCommand(&exitCode))

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if exitCode == ExitOK {
			exitCode = ExitConfigError
		}
	}
	return exitCode
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "hashrand-server %s (%s)\n", Version, GitCommit)
			return nil
		},
	}
}

func newHealthcheckCommand(exitCode *int) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running server's /healthz endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port))
			if err != nil {
				*exitCode = ExitStorageInit
				return fmt.Errorf("healthcheck request: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				*exitCode = ExitStorageInit
				return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "server port to probe")
	return cmd
}

func newStartCommand(exitCode *int) *cobra.Command {
	var configFile string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the authentication core server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), configFile, verbose, exitCode)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional YAML overlay for non-secret settings")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")
	return cmd
}

func runStart(ctx context.Context, configFile string, verbose bool, exitCode *int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		*exitCode = ExitConfigError
		return err
	}

	tel, err := telemetry.New(ctx, "hashrand-server", !cfg.IsProduction(), verbose)
	if err != nil {
		*exitCode = ExitConfigError
		return err
	}
	defer tel.Shutdown()

	logStartupSnapshot(tel.Slogger)

	repo, err := repository.NewProvider(ctx, repository.DBType(cfg.DatabaseType), cfg.DatabaseURL)
	if err != nil {
		*exitCode = ExitStorageInit
		return err
	}
	defer func() {
		if shutdownErr := repo.Shutdown(); shutdownErr != nil {
			tel.Slogger.Warn("repository shutdown", slog.String("error", shutdownErr.Error()))
		}
	}()

	orch, err := authflow.New(cfg, repo)
	if err != nil {
		*exitCode = ExitConfigError
		return err
	}

	handlers, err := apihandler.NewService(cfg, orch, repo, tel.Slogger, Version, GitCommit)
	if err != nil {
		*exitCode = ExitConfigError
		return err
	}

	srv, err := apiserver.New(cfg, handlers, tel)
	if err != nil {
		*exitCode = ExitConfigError
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Listen() }()

	tel.Slogger.Info("server started",
		slog.String("bind_address", cfg.BindAddress),
		slog.Int("port", cfg.Port),
		slog.String("environment", string(cfg.Environment)),
		slog.String("version", Version),
	)

	select {
	case err := <-listenErr:
		if err != nil {
			*exitCode = ExitPortBind
			return fmt.Errorf("listen on %s:%d: %w", cfg.BindAddress, cfg.Port, err)
		}
		return nil
	case sig := <-sigCh:
		tel.Slogger.Info("shutting down", slog.String("signal", sig.String()))
		if err := srv.Shutdown(); err != nil {
			tel.Slogger.Warn("server shutdown", slog.String("error", err.Error()))
		}
		return nil
	case <-ctx.Done():
		if err := srv.Shutdown(); err != nil {
			tel.Slogger.Warn("server shutdown", slog.String("error", err.Error()))
		}
		return nil
	}
}

// logStartupSnapshot records a host snapshot once at boot. Collection
// failures are logged and ignored; the server runs fine without it.
func logStartupSnapshot(logger *slog.Logger) {
	snapshot, err := sysinfo.Collect(sysinfo.DefaultProvider())
	if err != nil {
		logger.Warn("sysinfo collection failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("host snapshot",
		slog.String("hostname", snapshot.Hostname),
		slog.String("os", snapshot.GoOS),
		slog.String("arch", snapshot.GoArch),
		slog.Int("num_cpu", snapshot.NumCPU),
		slog.String("cpu_model", snapshot.CPUModel),
		slog.Uint64("ram_bytes", snapshot.RAMBytes),
		slog.String("username", snapshot.Username),
	)
}

// IsConfigError reports whether err is a configuration failure, used by
// tests asserting exit-code mapping.
func IsConfigError(err error) bool {
	return apperr.Is(err, apperr.KindConfigError)
}
