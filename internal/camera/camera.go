// Package camera reads hit tokens from the onboard camera module, which
// writes newline-terminated ASCII over a serial line.
package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.bug.st/serial"
)

// TokenHit is the token the camera emits when it sees a target.
const TokenHit = "HIT"

// StdinPort selects stdin instead of a serial device.
const StdinPort = "-"

// Open opens the camera link. port "-" reads from stdin.
func Open(port string, baud int) (io.ReadCloser, error) {
	if port == StdinPort {
		return io.NopCloser(os.Stdin), nil
	}
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening camera serial port %s: %w", port, err)
	}
	return p, nil
}

// IsHit reports whether a trimmed line is a hit token.
func IsHit(line string) bool {
	return line == TokenHit
}

// MaxLineLength bounds a camera line. Longer lines are noise and dropped.
const MaxLineLength = 256

// ScanOption configures Scan.
type ScanOption func(*scanConfig)

type scanConfig struct {
	logger *slog.Logger
}

// WithLogger reports dropped oversized lines to logger.
func WithLogger(logger *slog.Logger) ScanOption {
	return func(c *scanConfig) {
		c.logger = logger
	}
}

// Scan reads lines from r and sends each non-empty trimmed line to out.
// Lines longer than MaxLineLength are discarded up to the next newline and
// reading continues. It returns when r is exhausted, fails, or ctx is
// cancelled between lines.
func Scan(ctx context.Context, r io.Reader, out chan<- string, opts ...ScanOption) error {
	cfg := scanConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	br := bufio.NewReaderSize(r, MaxLineLength)
	discarding := false
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !discarding {
				cfg.logger.Warn("Dropping oversized camera line", "maxLength", MaxLineLength)
			}
			discarding = true
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading camera link: %w", err)
		}

		if discarding {
			// tail of the oversized line
			discarding = false
		} else if line := strings.TrimSpace(string(chunk)); line != "" {
			select {
			case out <- line:
			case <-ctx.Done():
				return nil
			}
		}

		if err != nil {
			return nil
		}
	}
}
