package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"ImageInsightServer/analysis"
	"ImageInsightServer/api"
	"ImageInsightServer/auth"
	"ImageInsightServer/config"
	"ImageInsightServer/detection"
	"ImageInsightServer/engine"
	iface "ImageInsightServer/interface"
	"ImageInsightServer/logger"
	"ImageInsightServer/monitor"
	"ImageInsightServer/remote"
	"ImageInsightServer/rpc"
	"ImageInsightServer/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Mode, cfg.Log.Level); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()

	if err := cfg.Validate(log); err != nil {
		log.Error("invalid configuration", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("safely exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cpuNum := runtime.NumCPU()
	logger.S().Infof("%s", strings.Repeat("#", 64))
	logger.S().Infof("CPU cores: %d, workers: %d", cpuNum, cfg.Model.WorkersNum)
	logger.S().Infof("HTTP port: %d, gRPC port: %d, metrics port: %d",
		cfg.Server.HTTPPort, cfg.Server.RPCPort, cfg.Server.MonitorPort)
	logger.S().Infof("%s", strings.Repeat("#", 64))

	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	users := store.NewUserRepository(db)
	analyses := store.NewAnalysisRepository(db)

	salt, err := cfg.Salt()
	if err != nil {
		return err
	}
	hasher, err := auth.NewHasher(auth.HasherParams{
		Salt:    salt,
		Time:    cfg.Auth.Argon2.Time,
		Memory:  cfg.Auth.Argon2.MemoryKiB,
		Threads: cfg.Auth.Argon2.Threads,
	})
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SigningKey))
	if err != nil {
		return err
	}
	credentials := auth.NewCredentials(users, hasher, tokens, log.Named("auth"))

	names, err := detection.LoadNames(cfg.Model.NamesPath)
	if err != nil {
		return err
	}
	eng, err := engine.New(iface.EngineConfig{
		ModelPath:  cfg.Model.WeightsPath,
		ConfigPath: cfg.Model.ConfigPath,
		Names:      names,
		InputSize:  cfg.Model.InputSize,
		Workers:    cfg.Model.WorkersNum,
	}, log.Named("engine"))
	if err != nil {
		return fmt.Errorf("failed to start detection engine: %w", err)
	}
	defer eng.Destroy()

	pipeline := detection.NewPipeline(eng, detection.Options{
		Names:         names,
		ConfThreshold: cfg.Model.ConfThreshold,
		NMSThreshold:  cfg.Model.NMSThreshold,
		ScoreOffset:   cfg.Model.ScoreOffset,
	}, log.Named("detection"))

	timeout := time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
	var translator iface.Translator
	if cfg.Remote.TranslateURL != "" {
		translator = remote.NewTranslateClient(cfg.Remote.TranslateURL, cfg.Remote.TranslateAPIKey, timeout)
	} else {
		log.Warn("no translateURL configured, descriptions and labels stay untranslated")
	}
	service := analysis.NewService(
		remote.NewCaptionClient(cfg.Remote.CaptionURL, timeout),
		translator,
		pipeline,
		engine.DecodeImage,
		analysis.NewRecorder(analyses, log.Named("analysis")),
		analysis.Config{TargetLanguage: cfg.Remote.TargetLanguage},
		log.Named("analysis"),
	)

	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := api.NewServer(api.Deps{
		Accounts:   credentials,
		Identifier: tokens,
		Analyzer:   service,
		History:    analysis.NewHistoryReader(analyses),
		Store:      db,
		Log:        log.Named("http"),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	rpcServer, err := rpc.StartGRPCServer(cfg.Server.RPCPort, db, log.Named("rpc"))
	if err != nil {
		return err
	}
	go rpcServer.Watch(ctx, 10*time.Second)

	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		if err := monitor.StartMon(ctx, cfg.Server.MonitorPort, log.Named("monitor")); err != nil {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-httpErr:
		log.Error("HTTP server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error("HTTP shutdown failed", zap.Error(shutdownErr))
	}
	rpcServer.GracefulStop()
	<-monDone
	return err
}
