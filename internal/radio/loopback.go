package radio

import (
	"sync"
	"time"
)

const ringCapacity = 64

// Loopback is an in-process driver. Frames sent by one Loopback are
// delivered to every connected peer, like a shared radio channel.
type Loopback struct {
	mu     sync.Mutex
	rxBuf  ringBuffer
	txBuf  ringBuffer
	peers  []*Loopback
	closed bool
}

// NewLoopback returns an unconnected loopback driver.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Connect puts drivers on the same simulated channel.
func Connect(drivers ...*Loopback) {
	for _, d := range drivers {
		d.mu.Lock()
		for _, p := range drivers {
			if p != d {
				d.peers = append(d.peers, p)
			}
		}
		d.mu.Unlock()
	}
}

// Tx records the frame and delivers a copy to each peer.
func (d *Loopback) Tx(data []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.txBuf.push(clone(data))
	peers := append([]*Loopback(nil), d.peers...)
	d.mu.Unlock()

	for _, p := range peers {
		p.InjectRx(data)
	}
	return nil
}

// Rx waits up to timeout for a frame.
func (d *Loopback) Rx(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, ErrClosed
		}
		frame, ok := d.rxBuf.pop()
		d.mu.Unlock()
		if ok {
			return frame, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

// Close stops the driver; subsequent Tx and Rx fail with ErrClosed.
func (d *Loopback) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// InjectRx queues a frame as if it had been received over the air.
func (d *Loopback) InjectRx(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.rxBuf.push(clone(data))
}

// Sent returns copies of the most recent transmitted frames, oldest first.
func (d *Loopback) Sent() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.txBuf.snapshot()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ringBuffer keeps the last ringCapacity frames, overwriting the oldest.
type ringBuffer struct {
	data       [ringCapacity][]byte
	head, tail int // head = next pop, tail = next push
	count      int
}

func (rb *ringBuffer) push(frame []byte) {
	if rb.count == ringCapacity {
		rb.data[rb.tail] = nil
		rb.head = (rb.head + 1) % ringCapacity
		rb.count--
	}
	rb.data[rb.tail] = frame
	rb.tail = (rb.tail + 1) % ringCapacity
	rb.count++
}

func (rb *ringBuffer) pop() ([]byte, bool) {
	if rb.count == 0 {
		return nil, false
	}
	frame := rb.data[rb.head]
	rb.data[rb.head] = nil
	rb.head = (rb.head + 1) % ringCapacity
	rb.count--
	return frame, true
}

func (rb *ringBuffer) snapshot() [][]byte {
	out := make([][]byte, 0, rb.count)
	i := rb.head
	for c := 0; c < rb.count; c++ {
		out = append(out, clone(rb.data[i]))
		i = (i + 1) % ringCapacity
	}
	return out
}
