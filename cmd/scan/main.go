// scan: scans barcodes from a local camera or a WebRTC stream.
// Hold a code steady in view; press Enter to dismiss a result and scan again.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/teslashibe/go-steadyscan/internal/config"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/camera"
	"github.com/teslashibe/go-steadyscan/pkg/debug"
	"github.com/teslashibe/go-steadyscan/pkg/detection"
	"github.com/teslashibe/go-steadyscan/pkg/frame"
	"github.com/teslashibe/go-steadyscan/pkg/ingest"
	"github.com/teslashibe/go-steadyscan/pkg/registration"
	"github.com/teslashibe/go-steadyscan/pkg/session"
	"github.com/teslashibe/go-steadyscan/pkg/stability"
	"github.com/teslashibe/go-steadyscan/pkg/video"
	"github.com/teslashibe/go-steadyscan/pkg/vision"
)

type options struct {
	cfg      config.Config
	preset   string
	camera   string
	producer string
	snapshot string
}

func main() {
	opts := parseFlags()
	if err := opts.cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	log.Init(opts.cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// parseFlags layers command line flags over the environment config
func parseFlags() options {
	opts := options{cfg: config.Load()}

	device := flag.Int("device", opts.cfg.CameraDevice, "Local camera index (SCAN_CAMERA_DEVICE)")
	url := flag.String("webrtc", opts.cfg.SignallingURL, "WebRTC signalling URL; empty uses the local camera (SCAN_SIGNALLING_URL)")
	detector := flag.String("detector", opts.cfg.Detector, "Detector backend: zxing, opencv or chain")
	history := flag.Int("history", opts.cfg.HistorySize, "Stability window in frames")
	threshold := flag.Float64("threshold", opts.cfg.StabilityThreshold, "Stability threshold in pixels")
	flag.StringVar(&opts.preset, "preset", camera.PresetDefault, "Camera preset: default, legacy, 1080p, lowlight, fast")
	flag.StringVar(&opts.camera, "camera", "", "Camera overrides, e.g. width=1920,height=1080,framerate=30")
	flag.StringVar(&opts.producer, "producer", "", "WebRTC producer name; empty picks the first")
	flag.StringVar(&opts.snapshot, "snapshot", "", "Write the latest frame to this JPEG path when a barcode is found")
	verbose := flag.Bool("debug", false, "Enable verbose debug logging")
	frames := flag.Bool("debug-frames", false, "Trace every frame (very noisy)")
	flag.Parse()

	opts.cfg.CameraDevice, opts.cfg.SignallingURL, opts.cfg.Detector = *device, *url, *detector
	opts.cfg.HistorySize, opts.cfg.StabilityThreshold = *history, *threshold
	debug.Enabled, debug.Frames = *verbose, *frames
	if *verbose {
		opts.cfg.LogLevel = "debug"
	}
	return opts
}

func run(ctx context.Context, opts options) error {
	cfg := opts.cfg

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

	gate := stability.Config{HistorySize: cfg.HistorySize, Threshold: cfg.StabilityThreshold}

	// The frame most recently offered to the session
	var last atomic.Pointer[frame.Frame]
	quality := 0

	listener := session.ListenerFuncs{
		OnStability: func(stable bool) {
			if stable {
				fmt.Println("🎯 Steady, scanning...")
			} else {
				fmt.Println("👋 Moving")
			}
		},
		OnBarcode: func(code detection.Barcode) {
			fmt.Printf("✅ %s [%s via %s]\n", code.Payload, code.Format, code.Backend)
			fmt.Println("   Press Enter to scan again")
			if opts.snapshot != "" {
				saveSnapshot(opts.snapshot, last.Load(), quality)
			}
		},
	}

	factory := ingest.PipelineFactory(det, phase)
	s, cleanup := factory("local", gate, listener)
	defer cleanup()

	sink := func(f *frame.Frame) {
		last.Store(f)
		s.HandleFrame(f)
	}

	go readDismissals(s)

	if cfg.SignallingURL != "" {
		return runWebRTC(ctx, cfg.SignallingURL, opts.producer, sink)
	}

	params, err := camera.ParseOverrides(opts.camera)
	if err != nil {
		return err
	}
	params["preset"] = opts.preset
	if _, ok := params["device"]; !ok {
		params["device"] = cfg.CameraDevice
	}

	manager := camera.NewManager(camera.DefaultConfig())
	if err := manager.UpdateConfig(params); err != nil {
		return fmt.Errorf("camera config: %w", err)
	}
	camCfg := manager.GetConfig()
	quality = camCfg.Quality

	src := camera.NewSource(manager)
	fmt.Printf("📷 Camera %d at %dx%d, hold a barcode steady in view\n", camCfg.Device, camCfg.Width, camCfg.Height)

	err = src.Run(ctx, sink)
	stats := src.Stats()
	log.Info("capture stopped", "frames", stats.Frames, "misses", stats.Misses, "session", s.Stats())
	return err
}

func runWebRTC(ctx context.Context, url, producer string, sink video.Sink) error {
	vcfg := video.DefaultConfig(url)
	vcfg.Producer = producer

	client := video.NewClient(vcfg)
	defer client.Close()

	fmt.Printf("📡 Connecting to %s\n", url)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	return client.Run(ctx, sink)
}

// readDismissals dismisses the shown barcode on each line from stdin
func readDismissals(s *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !s.Dismiss() {
			fmt.Println("   Nothing to dismiss")
		}
	}
}

func saveSnapshot(path string, f *frame.Frame, quality int) {
	if f == nil {
		return
	}
	data, err := vision.EncodeJPEGQuality(f, quality)
	if err != nil {
		log.Warn("snapshot encode failed", "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("snapshot write failed", "path", path, "error", err)
	}
}
