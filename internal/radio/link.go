package radio

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	defaultPollTimeout = 20 * time.Millisecond
	defaultFrameBuffer = 32
)

// Stats counts link traffic since start.
type Stats struct {
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithPollTimeout sets how long each receive poll waits.
func WithPollTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		l.pollTimeout = d
	}
}

// WithFrameBuffer sets how many received frames may wait for the control loop.
func WithFrameBuffer(n int) LinkOption {
	return func(l *Link) {
		l.frames = make(chan []byte, n)
	}
}

// Link polls a driver for frames and exposes them on a channel.
// Transmission is fire-and-forget: there is no retry or queueing.
type Link struct {
	driver      Driver
	logger      *slog.Logger
	frames      chan []byte
	pollTimeout time.Duration

	sent, failed, received, dropped atomic.Uint64
}

// NewLink wraps a driver.
func NewLink(d Driver, logger *slog.Logger, opts ...LinkOption) *Link {
	l := &Link{
		driver:      d,
		logger:      logger,
		frames:      make(chan []byte, defaultFrameBuffer),
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Transmit sends one frame.
func (l *Link) Transmit(frame []byte) error {
	if err := l.driver.Tx(frame); err != nil {
		l.failed.Add(1)
		return err
	}
	l.sent.Add(1)
	return nil
}

// Frames delivers received frames. It is closed when Run returns.
func (l *Link) Frames() <-chan []byte {
	return l.frames
}

// Run polls the driver until ctx is cancelled or the driver is closed.
// When the control loop falls behind, new frames are dropped.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.frames)

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := l.driver.Rx(l.pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrTimeout):
			continue
		case errors.Is(err, ErrClosed):
			if ctx.Err() != nil {
				return nil
			}
			return err
		default:
			l.logger.Warn("Radio receive error", "error", err)
			time.Sleep(l.pollTimeout)
			continue
		}

		l.received.Add(1)
		select {
		case l.frames <- frame:
		default:
			l.dropped.Add(1)
			l.logger.Warn("Radio frame buffer full, dropping frame", "bytes", len(frame))
		}
	}
}

// Stats returns the traffic counters.
func (l *Link) Stats() Stats {
	return Stats{
		Sent:     l.sent.Load(),
		Failed:   l.failed.Load(),
		Received: l.received.Load(),
		Dropped:  l.dropped.Load(),
	}
}

// Close closes the driver, which also ends Run.
func (l *Link) Close() error {
	return l.driver.Close()
}
