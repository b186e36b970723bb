package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/config"
	"github.com/aeroduel/plane/internal/hub"
	"github.com/aeroduel/plane/internal/indicator"
	"github.com/aeroduel/plane/internal/logging"
	"github.com/aeroduel/plane/internal/match"
	"github.com/aeroduel/plane/internal/monitor"
	intOtel "github.com/aeroduel/plane/internal/otel"
	"github.com/aeroduel/plane/internal/protocol"
	"github.com/aeroduel/plane/internal/registry"
	"github.com/aeroduel/plane/internal/server"
	"github.com/aeroduel/plane/pkg/streaming"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.1.0"
	BuildDate string = "unknown"
)

const (
	binaryName      = "aeroduel_plane"
	statusInterval  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", binaryName, err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet(binaryName, pflag.ExitOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := config.BindFlags(fs); err != nil {
		return err
	}
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", binaryName, Version, BuildDate)
		return nil
	}

	if err := config.Load(*configDir); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionStart := time.Now()
	planeID := config.GetString("planeId")
	logLevel := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(logging.LogFilePath(logsDir, binaryName, sessionStart), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		PlaneID:      planeID,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing OTel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	matchCfg := config.GetMatchConfig()
	state := match.NewState(matchCfg.ActiveOnStart)

	slogManager := logging.NewSlogManager()
	slogManager.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{
			slog.String("planeId", planeID),
			slog.Bool("matchActive", state.Active()),
		}
	})
	slogManager.Setup(io.MultiWriter(os.Stdout, logFile), logLevel, otelProvider.LoggerProvider())
	logger := slogManager.Logger()
	slog.SetDefault(logger)

	logger.Info("Starting plane controller",
		"version", Version,
		"buildDate", BuildDate,
		"planeId", planeID,
		"maxLives", matchCfg.MaxLives,
		"maxPlanes", matchCfg.MaxPlanes,
	)

	// journal: storage backend, InfluxDB and the dispatcher feeding them
	j, err := openJournal(ctx, planeID, logFile, logLevel, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	reg := registry.New(matchCfg.MaxPlanes, matchCfg.MaxLives)
	pushHub := hub.New(func() streaming.Roster { return match.Roster(reg) }, logger)
	defer pushHub.Close()

	link, err := openRadio(config.GetRadioConfig(), logger)
	if err != nil {
		return err
	}
	defer link.Close()

	arb, err := arbiter.New(arbiter.Dependencies{
		Codec:       protocol.NewCodec(planeID),
		Registry:    reg,
		Radio:       link,
		Match:       state,
		Indicator:   indicator.New(logger, nil),
		Broadcaster: pushHub,
		Recorder:    j.worker,
		Logger:      logger,
	}, arbiter.Policy{
		DecrementWhenInactive: matchCfg.DecrementWhenInactive,
		DedupWindow:           matchCfg.DedupWindow,
	})
	if err != nil {
		return fmt.Errorf("creating arbiter: %w", err)
	}

	ctrl, err := match.NewController(match.Dependencies{
		Registry:    reg,
		Arbiter:     arb,
		State:       state,
		Broadcaster: pushHub,
		Recorder:    j.worker,
		Logger:      logger,
	}, match.Config{
		PlaneID:            planeID,
		ResetLivesOnStart:  matchCfg.ResetLivesOnStart,
		RequireKnownTarget: matchCfg.RequireKnownTarget,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	if err := ctrl.RegisterSelf(); err != nil {
		return fmt.Errorf("registering own plane: %w", err)
	}

	pushHub.OnCommand(func(cmd string) {
		fn := ctrl.StartMatch
		if cmd == streaming.CmdMatchEnd {
			fn = ctrl.EndMatch
		}
		if err := ctrl.Do(ctx, fn); err != nil {
			logger.Warn("Push channel command not applied", "command", cmd, "error", err)
		}
	})

	lines, err := openCamera(ctx, config.GetCameraConfig(), logger)
	if err != nil {
		return err
	}

	mon := monitor.NewService(monitor.Dependencies{
		PlaneID:     planeID,
		Registry:    reg,
		Match:       ctrl,
		Radio:       link,
		Hub:         pushHub,
		Journal:     j.dispatcher,
		StorageType: j.storageType,
		StatusFile:  filepath.Join(logsDir, "status.json"),
		Logger:      logger,
	})
	mon.Start(statusInterval)
	defer mon.Stop()

	api := server.New(server.Dependencies{
		Controller: ctrl,
		Journal:    j.backend,
		Status:     mon,
		Hub:        pushHub,
		Logger:     logger,
	}, server.Config{PlaneID: planeID, Model: config.GetString("planeModel")})

	httpServer := &http.Server{
		Addr:              config.GetString("http.addr"),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return link.Run(gctx)
	})
	g.Go(func() error {
		return ctrl.Run(gctx, lines, link.Frames())
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("Shutting down", "error", err)
	return err
}
