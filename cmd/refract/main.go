package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zsiec/refract/internal/config"
	"github.com/zsiec/refract/internal/health"
	"github.com/zsiec/refract/internal/ingestion/codec"
	"github.com/zsiec/refract/internal/ingestion/memory"
	"github.com/zsiec/refract/internal/ingestion/rtp"
	"github.com/zsiec/refract/internal/logger"
	"github.com/zsiec/refract/internal/server"
	"github.com/zsiec/refract/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting Refract ingest server")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	// Frame assembly memory budget shared by all sessions
	memController := memory.NewController(cfg.Ingestion.Memory.MaxTotal, cfg.Ingestion.Memory.MaxPerStream)
	factory := codec.NewDepacketizerFactory(memController)

	srv := server.New(cfg, log)
	srv.HealthManager().Register(health.NewMemoryChecker(memController))

	var listener *rtp.Listener
	if cfg.Ingestion.RTP.Enabled {
		listener, err = rtp.NewListener(&cfg.Ingestion.RTP, &cfg.Ingestion.Codecs,
			factory, logger.NewLogrusAdapter(logger.WithComponent(log, "ingest")))
		if err != nil {
			log.WithError(err).Fatal("Failed to create RTP listener")
		}

		listener.SetFrameHandler(func(streamID string, frame *codec.Frame) error {
			logger.WithStream(log, streamID).WithFields(map[string]interface{}{
				"timestamp": frame.Timestamp,
				"size":      len(frame.Data),
			}).Debug("Frame assembled")
			return nil
		})

		if err := listener.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start RTP listener")
		}

		srv.HealthManager().Register(health.NewIngestChecker(listener))
		srv.RegisterRoutes(server.NewStreamAPI(srv, listener).RegisterRoutes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		log.WithError(err).Fatal("Server error")
	}

	if listener != nil {
		if err := listener.Stop(); err != nil {
			log.WithError(err).Error("Failed to stop RTP listener")
		}
	}

	log.Info("Server shutdown complete")
}
