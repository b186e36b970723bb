// Package indicator drives the pilot feedback (LED flash and buzzer tone)
// emitted whenever a combat frame leaves the plane.
package indicator

import (
	"log/slog"
	"sync"
	"time"
)

// Feedback identifies a feedback pattern.
type Feedback int

const (
	FeedbackHit Feedback = iota + 1
	FeedbackAck
)

func (f Feedback) String() string {
	switch f {
	case FeedbackHit:
		return "HIT"
	case FeedbackAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// Tone is a buzzer note played alongside the LED flash.
type Tone struct {
	Frequency int // Hz
	Duration  time.Duration
}

// ToneFor returns the buzzer note for a feedback pattern.
func ToneFor(f Feedback) Tone {
	switch f {
	case FeedbackHit:
		return Tone{Frequency: 2000, Duration: 100 * time.Millisecond}
	case FeedbackAck:
		return Tone{Frequency: 1600, Duration: 100 * time.Millisecond}
	default:
		return Tone{}
	}
}

// Output renders a tone on hardware. Implementations must not block.
type Output interface {
	Play(Tone)
}

// Indicator fans feedback out to an optional hardware output and the log.
type Indicator struct {
	logger *slog.Logger
	out    Output

	mu     sync.Mutex
	counts map[Feedback]int
}

// New returns an indicator. out may be nil on hosts without a buzzer.
func New(logger *slog.Logger, out Output) *Indicator {
	return &Indicator{
		logger: logger,
		out:    out,
		counts: make(map[Feedback]int),
	}
}

// Signal emits the feedback pattern.
func (i *Indicator) Signal(f Feedback) {
	tone := ToneFor(f)

	i.mu.Lock()
	i.counts[f]++
	i.mu.Unlock()

	if i.out != nil {
		i.out.Play(tone)
	}
	i.logger.Debug("Feedback", "pattern", f.String(), "toneHz", tone.Frequency, "duration", tone.Duration)
}

// Count returns how many times f was signalled.
func (i *Indicator) Count(f Feedback) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[f]
}
