// Command museguide is the main entry point for the museguide server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/museguide/internal/app"
	"github.com/MrWong99/museguide/internal/config"
	"github.com/MrWong99/museguide/internal/observe"
	"github.com/MrWong99/museguide/internal/recorder"
	"github.com/MrWong99/museguide/internal/recorder/capture"
	"github.com/MrWong99/museguide/pkg/audio"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level, thresholds and the catalog when files change")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "museguide: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "museguide: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("museguide starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Device registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinDevices(reg)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	opts := []app.Option{app.WithLogLevel(&level)}
	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath, 0))
	}
	application, err := app.New(ctx, cfg, reg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if code == 0 {
		slog.Info("goodbye")
	}
	return code
}

// ── Device wiring ─────────────────────────────────────────────────────────────

// registerBuiltinDevices registers the recording devices that ship with
// museguide.
func registerBuiltinDevices(reg *config.Registry) {
	reg.RegisterDevice("wav", func(rc config.RecorderConfig, sources capture.SourceResolver) (recorder.DeviceFactory, error) {
		if len(rc.Device.Options) > 0 {
			slog.Warn("the wav device takes no options; ignoring them", "options", rc.Device.Options)
		}
		format := audio.Format{SampleRate: rc.SampleRate, Channels: rc.Channels}
		if err := format.Validate(); err != nil {
			return nil, err
		}
		return capture.Factory(sources, capture.WithFormat(format)), nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	catalog := cfg.Guide.CatalogFile
	if catalog == "" {
		catalog = "(none)"
	}
	rc := cfg.Recorder
	fmt.Println("╔════════════════════════════════════════════════╗")
	fmt.Println("║          museguide - startup summary           ║")
	fmt.Println("╠════════════════════════════════════════════════╣")
	fmt.Printf("║  Catalog         : %-27s ║\n", truncate(catalog, 27))
	fmt.Printf("║  Fuzzy threshold : %-27.2f ║\n", cfg.Guide.FuzzyThreshold)
	fmt.Printf("║  Min confidence  : %-27.2f ║\n", cfg.Guide.ConfidenceThreshold)
	fmt.Printf("║  Device          : %-27s ║\n", rc.Device.Name)
	fmt.Printf("║  Recording       : %-27s ║\n", fmt.Sprintf("%s %d Hz %d ch", rc.Format, rc.SampleRate, rc.Channels))
	fmt.Printf("║  Duration        : %-27s ║\n", fmt.Sprintf("%s to %s", rc.MinDuration, rc.MaxDuration))
	fmt.Printf("║  Output dir      : %-27s ║\n", truncate(rc.OutputDir, 27))
	tls := "off"
	if cfg.Server.TLS != nil {
		tls = "on"
	}
	fmt.Printf("║  Listen addr     : %-27s ║\n", fmt.Sprintf("%s (tls %s)", cfg.Server.ListenAddr, tls))
	fmt.Println("╚════════════════════════════════════════════════╝")
}

// truncate shortens s to n runes, keeping the tail.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
