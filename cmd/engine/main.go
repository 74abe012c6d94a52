package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"parkwatch-service/internal/capture"
	"parkwatch-service/internal/config"
	"parkwatch-service/internal/detect"
	"parkwatch-service/internal/engine"
	"parkwatch-service/internal/evidence"
	"parkwatch-service/internal/notify"
	"parkwatch-service/internal/zones"
)

func main() {
	configPath := flag.String("config", "config/settings.yaml", "path to settings file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "parkwatch-engine").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	zoneMap, err := zones.Load(cfg.Engine.ZoneFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Engine.ZoneFile).Msg("failed to load zones")
	}

	detector, err := detect.NewYOLODetector(detect.YOLOConfig{
		WeightsPath:    cfg.Engine.Model.Weights,
		NetConfigPath:  cfg.Engine.Model.NetConfig,
		ClassNamesPath: cfg.Engine.Model.ClassNames,
		InputSize:      cfg.Engine.Model.InputSize,
		Confidence:     cfg.Engine.Model.Confidence,
		IOU:            cfg.Engine.Model.IOU,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load detection model")
	}

	src, err := capture.Open(cfg.Engine.VideoSource, log)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Engine.VideoSource).Msg("failed to open video source")
	}
	buf := capture.NewBuffer()
	loop := capture.NewLoop(src, buf, log)

	writer, err := evidence.NewWriter(cfg.Engine.OutputDir, log)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Engine.OutputDir).Msg("failed to prepare output directory")
	}

	var emitters []notify.Emitter
	if cfg.MQTT.BrokerURL != "" {
		mq, err := notify.NewMQTTEmitter(cfg.MQTT.BrokerURL, cfg.MQTT.ClientID, cfg.MQTT.Topic, log)
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.BrokerURL).Msg("mqtt unavailable, continuing without it")
		} else {
			emitters = append(emitters, mq)
		}
	}
	notifier := notify.NewDispatcher(cfg.Engine.DashboardURL, log, emitters...)

	eng := engine.New(cfg.Engine, loop, buf, detector, zoneMap, writer, notifier, log)
	eng.Start()

	mux := http.NewServeMux()
	mux.Handle("/stream", eng.Stream())
	server := &http.Server{Addr: cfg.Engine.ListenAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.Engine.ListenAddr).Msg("live feed listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("live feed server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	eng.Stop()
}
