package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aeroduel/plane/internal/config"
	"github.com/aeroduel/plane/internal/dispatcher"
	"github.com/aeroduel/plane/internal/influx"
	"github.com/aeroduel/plane/internal/logging"
	"github.com/aeroduel/plane/internal/storage"
	"github.com/aeroduel/plane/internal/worker"
)

// journal bundles the recording pipeline: dispatcher, worker and sinks.
type journal struct {
	storageType string
	backend     storage.Backend
	influx      *influx.Manager
	dispatcher  *dispatcher.Dispatcher
	worker      *worker.Manager
}

func openJournal(ctx context.Context, planeID string, logFile io.Writer, logLevel string, logger *slog.Logger) (*journal, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.NewBackend(storageCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initializing storage backend: %w", err)
	}
	logger.Info("Journal storage initialized", "type", storageCfg.Type, "maxEntries", storageCfg.MaxEntries)

	j := &journal{storageType: storageCfg.Type, backend: backend}

	deps := worker.Dependencies{Backend: backend, Logger: logger, PlaneID: planeID}

	influxMgr := influx.NewManager(logging.NewZerolog(logFile, logLevel), config.GetInfluxConfig())
	switch err := influxMgr.Connect(ctx); {
	case err == nil:
		j.influx = influxMgr
		deps.Influx = influxMgr
	case errors.Is(err, influx.ErrDisabled):
		logger.Debug("InfluxDB disabled")
	default:
		logger.Warn("InfluxDB unavailable, continuing without it", "error", err)
		_ = influxMgr.Close()
	}

	d, err := dispatcher.New(logger)
	if err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	j.dispatcher = d
	deps.Dispatcher = d

	j.worker = worker.NewManager(deps)
	j.worker.RegisterHandlers(d)
	logger.Debug("Journal handlers registered with dispatcher")

	return j, nil
}

// Close drains queued events before closing the sinks.
func (j *journal) Close() error {
	if j.dispatcher != nil {
		j.dispatcher.Close()
	}
	var errs []error
	if j.influx != nil {
		errs = append(errs, j.influx.Close())
	}
	errs = append(errs, j.backend.Close())
	return errors.Join(errs...)
}
