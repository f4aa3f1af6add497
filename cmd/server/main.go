// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/quranload/audiocore/internal/api/httpapi"
	"github.com/quranload/audiocore/internal/app/merge"
	"github.com/quranload/audiocore/internal/infra/config"
	"github.com/quranload/audiocore/internal/infra/devlog"
	"github.com/quranload/audiocore/internal/infra/ffmpeg"
	"github.com/quranload/audiocore/internal/infra/logger"
)

var (
	app        = kingpin.New("audiocore-server", "audiocore fragment merge server")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check command
	checkCmd = app.Command("check", "Check the merge engine and configuration, then exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Load config
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := cfg.LoggerConfig()
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	ring, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if command == checkCmd.FullCommand() {
		if err := check(cfg); err != nil {
			zlog.Error().Msgf("Check failed: %v", err)
			os.Exit(1)
		}
		zlog.Info().Msg("Check passed")
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg, ring); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// check verifies that the engine binary resolves and the encoder profile is valid.
func check(cfg *config.Config) error {
	runner := ffmpeg.NewRunner(ffmpeg.Config{BinaryPath: cfg.Merge.FFmpegPath})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runner.HealthCheck(ctx); err != nil {
		return err
	}
	zlog.Info().Msgf("Engine found: path=%s", runner.BinaryPath())

	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	zlog.Info().Msgf("Encoder profile: platform=%s codec=%s quality=%d extension=%s",
		cfg.Merge.Platform, profile.Codec, profile.Quality, profile.Extension)
	return nil
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config, ring *devlog.Ring) error {
	// Setup shutdown hook (defer ensures it runs on any exit from this function)
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	mergeConfig, err := cfg.ConcatenatorConfig()
	if err != nil {
		return errors.Wrap(err, "invalid merge config")
	}

	runner := ffmpeg.NewRunner(ffmpeg.Config{BinaryPath: cfg.Merge.FFmpegPath})
	if err := runner.HealthCheck(context.Background()); err != nil {
		// The server still starts; /healthz reports the problem.
		zlog.Warn().Msgf("Merge engine unavailable: %v", err)
	}
	if mergeConfig.FragmentRoot == "" {
		zlog.Warn().Msg("merge.fragment_root is not set: /v1/merge accepts any readable path")
	}
	concatenator := merge.NewConcatenator(runner, mergeConfig)

	server := httpapi.NewServer(httpapi.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		MetricsEnabled:  cfg.MetricsEnabled(),
		MetricsPath:     cfg.Metrics.Path,
	}, concatenator, runner, ring)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
		cancel()
		if err := <-serverErrCh; err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
