// Package main provides the audiocore CLI for merging and playing recordings locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/quranload/audiocore/internal/app/merge"
	"github.com/quranload/audiocore/internal/app/playback"
	"github.com/quranload/audiocore/internal/domain/audio"
	"github.com/quranload/audiocore/internal/infra/config"
	"github.com/quranload/audiocore/internal/infra/ffmpeg"
	"github.com/quranload/audiocore/internal/infra/logger"
)

var (
	app        = kingpin.New("audiocli", "audiocore command line client")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	// merge command
	mergeCmd       = app.Command("merge", "Merge recorded fragments into one file")
	mergePlatform  = mergeCmd.Flag("platform", "Target platform (ios, android)").String()
	mergeFragments = mergeCmd.Arg("fragment", "Fragment files in playback order").Required().ExistingFiles()

	// play command
	playCmd      = app.Command("play", "Play files one after another through the playback coordinator")
	playInterval = playCmd.Flag("interval", "Start the next file after this long (0 = when the current one ends)").Default("0s").Duration()
	playFiles    = playCmd.Arg("file", "Audio files").Required().ExistingFiles()

	// profiles command
	profilesCmd = app.Command("profiles", "Print resolved encoder profiles")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := cfg.LoggerConfig()
	loggerConfig.Output = "stderr"
	loggerConfig.Level = "warn"
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if _, err := logger.Init(loggerConfig); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Ctrl+C cancels the running operation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Execute command
	switch command {
	case mergeCmd.FullCommand():
		err = mergeFragmentFiles(ctx, cfg, *mergeFragments)
	case playCmd.FullCommand():
		err = playSequence(ctx, cfg, *playFiles, *playInterval)
	case profilesCmd.FullCommand():
		err = printProfiles(cfg)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

func mergeFragmentFiles(ctx context.Context, cfg *config.Config, fragments []string) error {
	if *mergePlatform != "" {
		cfg.Merge.Platform = *mergePlatform
	}
	mergeConfig, err := cfg.ConcatenatorConfig()
	if err != nil {
		return err
	}

	runner := ffmpeg.NewRunner(ffmpeg.Config{BinaryPath: cfg.Merge.FFmpegPath})
	concatenator := merge.NewConcatenator(runner, mergeConfig)

	job := concatenator.Submit(ctx, fragments)
	fmt.Printf("Merging %d fragments into %s (Ctrl+C to cancel)\n", len(fragments), job.Output())

	result := <-job.Done()
	switch result.Status {
	case merge.StatusSuccess:
		fmt.Printf("Merged: %s\n", result.Path)
		return nil
	case merge.StatusCancelled:
		fmt.Println("Cancelled, no output written")
		return nil
	default:
		if result.Diagnostics != "" {
			fmt.Printf("ffmpeg output:\n%s\n", result.Diagnostics)
		}
		return result.Err
	}
}

func playSequence(ctx context.Context, cfg *config.Config, files []string, interval time.Duration) error {
	session := ffmpeg.NewFFplaySession(cfg.Playback.PlayerPath)
	coordinator := playback.NewCoordinator(session, playback.Config{
		Mode:           cfg.SessionMode(),
		SessionTimeout: cfg.SessionTimeout(),
	})
	defer coordinator.Close()

	unsubscribe := coordinator.OnPlayback(func() {
		fmt.Println("  playback starting, anything else pauses")
	})
	defer unsubscribe()

	var (
		handles []*playback.Handle
		player  *ffmpeg.FFplayPlayer
	)
	defer func() {
		for _, h := range handles {
			_ = h.Release()
		}
	}()

	for i, file := range files {
		player = ffmpeg.NewFFplayPlayer(cfg.Playback.PlayerPath, file)
		h := coordinator.NewHandle(player)
		handles = append(handles, h)

		fmt.Printf("[%d/%d] %s (%s)\n", i+1, len(files), file, h.ID())
		if err := coordinator.Play(ctx, h); err != nil {
			return err
		}

		var next <-chan time.Time
		if interval > 0 {
			next = time.After(interval)
		}
		select {
		case <-player.Done():
		case <-next:
		case <-ctx.Done():
			fmt.Println("Stopped")
			return nil
		}
	}

	// Let the last file finish
	select {
	case <-player.Done():
	case <-ctx.Done():
		fmt.Println("Stopped")
	}
	fmt.Printf("Playback notifications sent: %d\n", coordinator.Broadcasts())
	return nil
}

func printProfiles(cfg *config.Config) error {
	fmt.Println("Encoder profiles:")
	for _, platform := range []audio.Platform{audio.PlatformIOS, audio.PlatformAndroid} {
		profile, err := merge.ResolveProfile(platform, cfg.Merge.Profiles)
		if err != nil {
			return err
		}
		marker := " "
		if platform.String() == cfg.Merge.Platform {
			marker = "*"
		}
		fmt.Printf("%s %-8s codec=%s quality=%d extension=%s sample_rate=%d channels=%d\n",
			marker, platform, profile.Codec, profile.Quality, profile.Extension, profile.SampleRate, profile.Channels)
	}
	return nil
}
