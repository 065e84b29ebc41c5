// scand: barcode scan server. Cameras stream frames over WebSocket; each
// connection gets its own stability-gated scanning session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-steadyscan/internal/config"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/ingest"
	"github.com/teslashibe/go-steadyscan/pkg/notify"
	"github.com/teslashibe/go-steadyscan/pkg/registration"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
	"github.com/teslashibe/go-steadyscan/pkg/web"
)

var version = "0.1.0"

func main() {
	cfg := config.Load()

	port := flag.String("port", cfg.Port, "HTTP server port (SCAN_PORT)")
	detector := flag.String("detector", cfg.Detector, "Detector backend: zxing, opencv or chain (SCAN_DETECTOR)")
	verbose := flag.Bool("debug", false, "Enable verbose debug logging")
	frames := flag.Bool("debug-frames", false, "Trace every frame (very noisy)")
	flag.Parse()

	cfg.Port, cfg.Detector = *port, *detector
	debug.Enabled, debug.Frames = *verbose, *frames
	if *verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.For("scand")

	fmt.Println()
	fmt.Println("📦 steadyscan v" + version)
	fmt.Println("   Stability-gated barcode scan server")
	fmt.Println()

	if err := run(cfg); err != nil {
		logger.Error("scand failed", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg config.Config) error {
	logger := log.For("scand")

	detCfg := detection.DefaultConfig()
	if cfg.Symbologies != "" {
		detCfg.Symbologies = detection.ParseSymbologies(cfg.Symbologies)
	}
	det, err := detection.New(cfg.Detector, detCfg)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	defer det.Close()

	phase := registration.DefaultPhaseConfig()
	phase.MinResponse = cfg.MinResponse
	phase.Scale = cfg.RegistrationScale

	gate := stability.Config{
		HistorySize: cfg.HistorySize,
		Threshold:   cfg.StabilityThreshold,
	}

	cameras := ingest.NewHub(ingest.PipelineFactory(det, phase), gate)
	server := web.NewServer(cfg.Port, cameras, cfg.Detector)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.WebhookURL != "" {
		hook := notify.NewWebhook(cfg.WebhookURL)
		cameras.OnEvent(hook.Notify)
		go hook.Run(ctx)
	}

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	logger.Info("ready",
		"detector", cfg.Detector,
		"history", gate.HistorySize,
		"threshold", gate.Threshold,
		"camera_ws", "ws://localhost:"+cfg.Port+"/ws/camera",
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return server.Shutdown()
}
