package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/filter"
	"github.com/ayusman/mudra/internal/pipeline"
	"github.com/ayusman/mudra/internal/roi"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/telemetry"
)

func main() {
	fmt.Println("Mudra - Adaptive Hand Tracking")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		dataDir := filepath.Join(homeDir, ".mudra")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		dbPath = filepath.Join(dataDir, "mudra.db")
	}

	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	// Try MediaPipe first, fall back to the mock detector so the server
	// and archived sessions remain usable without the Python engine.
	var det detector.Detector
	if mp, err := detector.NewMediaPipeDetector(detectorConfig(cfg)); err == nil {
		det = mp
		log.Println("Using MediaPipe hand detection")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		det = detector.NewMockDetector()
	}

	registry := prometheus.NewRegistry()
	recorder := telemetry.NewRecorder(telemetry.DefaultWindow, registry)

	camera := capture.NewCamera(cfg.CameraID)
	orch := pipeline.New(pipelineConfig(cfg), camera, det, st, recorder)
	defer orch.Close()

	if err := orch.Start(); err != nil {
		log.Printf("Pipeline not started (%v); start it via POST /api/pipeline/start", err)
	}

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Pipeline:  orch,
		Metrics:   registry,
	})

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("Starting server on %s\n", cfg.Addr)
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	}
}

// pipelineConfig maps the loaded application config onto pipeline settings.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		TickRate:        cfg.TickRate,
		TargetFPS:       cfg.TargetFPS,
		MaxHands:        cfg.MaxHands,
		MotionThreshold: cfg.MotionThreshold,
		IdleTimeout:     time.Duration(cfg.IdleTimeoutMS) * time.Millisecond,
		SlotTimeout:     time.Duration(cfg.SlotTimeoutMS) * time.Millisecond,
		Filter: filter.Config{
			MinCutoff: cfg.Filter.MinCutoff,
			Beta:      cfg.Filter.Beta,
			DCutoff:   cfg.Filter.DCutoff,
		},
		ROI: roi.Config{
			MinSize:              cfg.ROI.MinSize,
			MaxSize:              cfg.ROI.MaxSize,
			VelocityMultiplier:   cfg.ROI.VelocityMultiplier,
			MovementThreshold:    cfg.ROI.MovementThreshold,
			MaxFullFrameInterval: time.Duration(cfg.ROI.MaxFullFrameDelayMS) * time.Millisecond,
		},
		MaxFeatures:      cfg.MaxFeatures,
		ArchiveBatchSize: cfg.ArchiveBatchSize,
	}
}

func detectorConfig(cfg *config.Config) detector.Config {
	dc := detector.DefaultConfig()
	dc.MaxHands = cfg.MaxHands
	return dc
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.mudra/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".mudra", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
