package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aeroduel/plane/internal/camera"
	"github.com/aeroduel/plane/internal/config"
	"github.com/aeroduel/plane/internal/radio"
)

func openRadio(cfg config.RadioConfig, logger *slog.Logger) (*radio.Link, error) {
	var driver radio.Driver
	switch cfg.Driver {
	case "udp":
		d, err := radio.NewUDPDriver(cfg.ListenAddr, cfg.BroadcastAddr)
		if err != nil {
			return nil, fmt.Errorf("opening UDP radio: %w", err)
		}
		logger.Info("Radio on UDP", "listen", d.LocalAddr(), "broadcast", cfg.BroadcastAddr)
		driver = d
	case "loopback":
		logger.Warn("Radio on loopback driver, no frames leave this process")
		driver = radio.NewLoopback()
	default:
		return nil, fmt.Errorf("unknown radio driver: %s", cfg.Driver)
	}
	return radio.NewLink(driver, logger), nil
}

// openCamera starts reading hit tokens. It returns a nil channel when the
// camera is disabled, which the control loop treats as never ready.
func openCamera(ctx context.Context, cfg config.CameraConfig, logger *slog.Logger) (<-chan string, error) {
	if cfg.Port == "" {
		logger.Info("Camera disabled")
		return nil, nil
	}

	r, err := camera.Open(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, err
	}

	lines := make(chan string, 8)
	go func() {
		defer close(lines)
		defer r.Close()
		if err := camera.Scan(ctx, r, lines, camera.WithLogger(logger)); err != nil {
			logger.Error("Camera link failed", "error", err)
		}
	}()
	// reads block; closing the port unblocks Scan on shutdown
	go func() {
		<-ctx.Done()
		r.Close()
	}()

	logger.Info("Camera open", "port", cfg.Port, "baud", cfg.Baud)
	return lines, nil
}
