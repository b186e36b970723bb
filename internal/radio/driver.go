// Package radio moves raw combat frames between planes. A Driver wraps the
// physical link; Link adds the receive poll loop and transmit accounting.
package radio

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Rx when no frame arrived in time.
	ErrTimeout = errors.New("radio: receive timeout")
	// ErrClosed is returned by a driver after Close.
	ErrClosed = errors.New("radio: driver closed")
)

// Driver is the interface that wraps the basic radio operations.
type Driver interface {
	Tx(frame []byte) error
	Rx(timeout time.Duration) ([]byte, error)
	Close() error
}
