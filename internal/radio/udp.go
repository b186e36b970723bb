package radio

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/aeroduel/plane/internal/protocol"
)

// UDPDriver stands in for the LoRa transceiver on hosts with a network:
// every frame is a broadcast datagram, and every plane on the segment hears it,
// including the sender itself.
type UDPDriver struct {
	conn net.PacketConn
	dst  *net.UDPAddr
	buf  []byte
}

// NewUDPDriver listens on listenAddr and transmits to broadcastAddr.
func NewUDPDriver(listenAddr, broadcastAddr string) (*UDPDriver, error) {
	dst, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving broadcast address %q: %w", broadcastAddr, err)
	}
	conn, err := net.ListenPacket("udp4", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", listenAddr, err)
	}
	return &UDPDriver{
		conn: conn,
		dst:  dst,
		// one spare byte so oversized datagrams are seen as oversized, not truncated to a valid length
		buf: make([]byte, protocol.MaxFrameSize+1),
	}, nil
}

// LocalAddr returns the address the driver receives on.
func (d *UDPDriver) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// Tx sends one datagram.
func (d *UDPDriver) Tx(frame []byte) error {
	if _, err := d.conn.WriteTo(frame, d.dst); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("udp tx: %w", err)
	}
	return nil
}

// Rx waits up to timeout for one datagram.
func (d *UDPDriver) Rx(timeout time.Duration) ([]byte, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("udp set deadline: %w", err)
	}
	n, _, err := d.conn.ReadFrom(d.buf)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil, ErrTimeout
		case errors.Is(err, net.ErrClosed):
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("udp rx: %w", err)
	}
	return clone(d.buf[:n]), nil
}

// Close releases the socket.
func (d *UDPDriver) Close() error {
	return d.conn.Close()
}
