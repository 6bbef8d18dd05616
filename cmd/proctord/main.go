package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lpernett/godotenv"
	_ "modernc.org/sqlite"

	"github.com/sensai-labs/go-proctor/internal/config"
	"github.com/sensai-labs/go-proctor/internal/log"
	"github.com/sensai-labs/go-proctor/pkg/archive"
	"github.com/sensai-labs/go-proctor/pkg/detect"
	"github.com/sensai-labs/go-proctor/pkg/hub"
	"github.com/sensai-labs/go-proctor/pkg/notify"
	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/sessions"
	"github.com/sensai-labs/go-proctor/pkg/store"
	"github.com/sensai-labs/go-proctor/pkg/web"
)

// Load environment variables from .env so local runs pick up API keys
// and credentials without exporting them.
func init() {
	godotenv.Load()
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	log.Init(cfg.Logging.Level)
	log.Info("proctord starting", "addr", cfg.Server.Addr, "db", cfg.Store.Path)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Error("store open failed", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	monitors := hub.New("monitors")

	// Every confirmed violation reaches persistence and live dashboards
	// through one sink chain.
	sink := pipeline.MultiSink{st, monitors}

	var uploader *archive.Uploader
	if cfg.Archive.Enabled {
		uploader, err = archive.NewUploader(context.Background(), cfg.ArchiveConfig())
		if err != nil {
			log.Error("archive init failed", "bucket", cfg.Archive.Bucket, "error", err)
			os.Exit(1)
		}
		sink = append(sink, uploader)
		log.Info("evidence archive enabled", "bucket", cfg.Archive.Bucket)
	}

	if cfg.Webhook.URL != "" {
		sink = append(sink, notify.New(cfg.NotifyConfig()))
		log.Info("violation webhook enabled", "url", cfg.Webhook.URL)
	}

	sessCfg, err := cfg.SessionsConfig()
	if err != nil {
		log.Error("invalid pipeline config", "error", err)
		os.Exit(1)
	}
	manager := sessions.NewManager(sessCfg, sink)
	defer manager.Close()

	srv := web.NewServer(web.Config{
		Addr:        cfg.Server.Addr,
		CORSOrigins: cfg.Server.CORSOrigins,
		BodyLimit:   cfg.Server.BodyLimitMB << 20,
		Pipeline:    sessCfg.Pipeline,
	}, manager, st, monitors)
	srv.Scanner = buildScanner(cfg)
	srv.Uploader = uploader

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	if err := srv.Shutdown(); err != nil {
		log.Warn("shutdown error", "error", err)
	}
	log.Info("proctord stopped")
}

// buildScanner loads whichever snapshot detector models are available.
// A missing model disables that detector rather than the server.
func buildScanner(cfg config.Config) *detect.Scanner {
	if !cfg.Detect.Enabled {
		return nil
	}
	faceCfg, objCfg := cfg.DetectConfigs()

	var faces detect.FaceDetector
	if f, err := detect.NewYuNet(faceCfg); err != nil {
		log.Warn("face detector unavailable", "model", faceCfg.ModelPath, "error", err)
	} else {
		faces = f
	}

	var objects detect.ObjectDetector
	if o, err := detect.NewYOLO(objCfg); err != nil {
		log.Warn("object detector unavailable", "model", objCfg.ModelPath, "error", err)
	} else {
		objects = o
	}

	if faces == nil && objects == nil {
		return nil
	}
	log.Info("snapshot detectors enabled", "faces", faces != nil, "objects", objects != nil)
	return detect.NewScanner(faces, objects)
}
