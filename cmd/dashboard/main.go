package main

import (
	"flag"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parkwatch-service/internal/broadcast"
	"parkwatch-service/internal/config"
	"parkwatch-service/internal/db"
	apphttp "parkwatch-service/internal/http"
	"parkwatch-service/internal/repository"
	"parkwatch-service/internal/service"
	"parkwatch-service/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config/settings.yaml", "path to settings file")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "parkwatch-dashboard").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load settings")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	database, err := db.Connect(cfg.Dashboard.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	hub := broadcast.NewHub(log)
	defer hub.Close()

	repo := repository.NewViolationRepository(database)
	violationService := service.NewViolationService(repo, hub, log)

	sup := supervisor.New(cfg.Dashboard.EngineBinary, []string{"-config", *configPath}, log)
	if err := sup.Start(); err != nil {
		log.Warn().Err(err).Msg("engine not started, use the control API to start it")
	}
	defer sup.Stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Dashboard.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Dashboard.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	handler := apphttp.NewHandler(violationService, hub, sup, cfg, log)
	handler.Register(router, apphttp.AuthMiddleware(cfg.Dashboard.AuthSecret))

	log.Info().Str("addr", cfg.Dashboard.ListenAddr).Msg("dashboard listening")
	if err := router.Run(cfg.Dashboard.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("dashboard server failed")
	}
}
