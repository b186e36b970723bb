// Package arbiter decides what a camera hit, a companion hit request or a
// received radio frame does to the match: transmit, take a life, acknowledge,
// or nothing.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aeroduel/plane/internal/indicator"
	"github.com/aeroduel/plane/internal/protocol"
	"github.com/aeroduel/plane/internal/registry"
)

// pendingTTL bounds how long an unacknowledged HIT is tracked.
const pendingTTL = 30 * time.Second

// Registry is the subset of the plane registry the arbiter uses.
type Registry interface {
	FirstOnlineExcept(planeID string) (registry.Aircraft, bool)
	DecrementLife(planeID string) (int, bool)
}

// Transmitter sends a frame over the radio. Delivery is not confirmed.
type Transmitter interface {
	Transmit(frame []byte) error
}

// MatchState reports whether a match is running.
type MatchState interface {
	Active() bool
}

// Indicator plays pilot feedback.
type Indicator interface {
	Signal(indicator.Feedback)
}

// Broadcaster pushes updates to companion apps.
type Broadcaster interface {
	PushHit()
	PushSnapshot()
}

// Recorder receives every decision for journaling. It must not block.
type Recorder interface {
	RecordCombat(Report)
}

// Dependencies holds the arbiter's collaborators. Recorder may be nil.
type Dependencies struct {
	Codec       *protocol.Codec
	Registry    Registry
	Radio       Transmitter
	Match       MatchState
	Indicator   Indicator
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Policy holds the tunable combat rules.
type Policy struct {
	// DecrementWhenInactive takes a life for radio HITs even when no match is running.
	DecrementWhenInactive bool
	// DedupWindow suppresses repeated HITs with the same sender and sequence
	// number; 0 disables suppression.
	DedupWindow time.Duration
}

type dedupKey struct {
	from string
	seq  uint32
}

type pendingHit struct {
	to     string
	sentAt time.Time
}

// Arbiter applies the combat rules. Its methods are meant to be called from
// the single control loop; internal state is still mutex-guarded.
type Arbiter struct {
	deps   Dependencies
	policy Policy
	self   string
	start  time.Time
	seq    atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]pendingHit
	seen    map[dedupKey]time.Time

	hitsSent     metric.Int64Counter
	hitsReceived metric.Int64Counter
	acksReceived metric.Int64Counter
	discarded    metric.Int64Counter
}

// New creates an arbiter. Metrics use the global OTel meter.
func New(deps Dependencies, policy Policy) (*Arbiter, error) {
	if deps.Codec == nil || deps.Registry == nil || deps.Radio == nil || deps.Match == nil {
		return nil, errors.New("arbiter: codec, registry, radio and match state are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	a := &Arbiter{
		deps:    deps,
		policy:  policy,
		self:    deps.Codec.Self(),
		start:   deps.Clock(),
		pending: make(map[uint32]pendingHit),
		seen:    make(map[dedupKey]time.Time),
	}

	m := meter()
	var err error
	if a.hitsSent, err = m.Int64Counter("arbiter.hits.sent",
		metric.WithDescription("HIT frames transmitted")); err != nil {
		return nil, fmt.Errorf("creating hits sent counter: %w", err)
	}
	if a.hitsReceived, err = m.Int64Counter("arbiter.hits.received",
		metric.WithDescription("HIT frames addressed to this plane")); err != nil {
		return nil, fmt.Errorf("creating hits received counter: %w", err)
	}
	if a.acksReceived, err = m.Int64Counter("arbiter.acks.received",
		metric.WithDescription("ACK frames addressed to this plane")); err != nil {
		return nil, fmt.Errorf("creating acks received counter: %w", err)
	}
	if a.discarded, err = m.Int64Counter("arbiter.frames.discarded",
		metric.WithDescription("Radio frames dropped as malformed or self-originated")); err != nil {
		return nil, fmt.Errorf("creating discarded counter: %w", err)
	}

	return a, nil
}

// OnCameraHit handles a hit token from the onboard camera. Outside an
// active match it does nothing; otherwise the first other online plane in
// registration order is the target.
func (a *Arbiter) OnCameraHit() Report {
	if !a.deps.Match.Active() {
		a.deps.Logger.Info("Camera hit ignored, match inactive")
		return a.finish(Report{Outcome: Ignored, Source: SourceCamera})
	}

	target, ok := a.deps.Registry.FirstOnlineExcept(a.self)
	if !ok {
		a.deps.Logger.Warn("Camera hit with no online target")
		return a.finish(Report{Outcome: NoTarget, Source: SourceCamera})
	}

	a.deps.Logger.Info("Camera hit detected", "target", target.PlaneID)
	return a.sendHit(SourceCamera, target.PlaneID)
}

// Originate sends a HIT requested by the companion app. The caller has
// already authorized the shooter and validated the target.
func (a *Arbiter) Originate(target string) Report {
	return a.sendHit(SourceCompanion, target)
}

func (a *Arbiter) sendHit(src Source, target string) Report {
	ev := protocol.Event{
		Type:      protocol.TypeHit,
		From:      a.self,
		To:        target,
		Timestamp: a.uptimeMillis(),
		Seq:       a.nextSeq(),
	}

	frame, err := a.transmit(ev)
	if err != nil {
		a.deps.Logger.Warn("HIT not sent", "to", target, "error", err)
		return a.finish(Report{Outcome: SendFailed, Source: src, Event: ev, Frame: frame, Err: err})
	}

	a.mu.Lock()
	a.prunePending()
	a.pending[ev.Seq] = pendingHit{to: target, sentAt: a.deps.Clock()}
	a.mu.Unlock()

	a.hitsSent.Add(context.Background(), 1, metric.WithAttributes(attribute.String("source", string(src))))
	if a.deps.Broadcaster != nil {
		a.deps.Broadcaster.PushHit()
		a.deps.Broadcaster.PushSnapshot()
	}
	a.deps.Logger.Info("HIT sent", "to", target, "seq", ev.Seq, "source", src)

	return a.finish(Report{Outcome: HitSent, Source: src, Event: ev, Frame: frame})
}

// OnRadioPacket handles one received frame.
func (a *Arbiter) OnRadioPacket(frame []byte) Report {
	ev, err := a.deps.Codec.Decode(frame)
	switch {
	case errors.Is(err, protocol.ErrWrongRecipient):
		a.deps.Logger.Debug("Frame for another plane", "from", ev.From, "to", ev.To)
		return a.finish(Report{Outcome: NotForUs, Source: SourceRadio, Event: ev, Frame: frame})
	case err != nil:
		a.deps.Logger.Warn("Discarding malformed frame", "error", err, "bytes", len(frame))
		a.discarded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "malformed")))
		return a.finish(Report{Outcome: Discarded, Source: SourceRadio, Frame: frame, Err: err})
	}

	if ev.From == a.self {
		a.deps.Logger.Debug("Discarding self-originated frame", "type", ev.Type)
		a.discarded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "self")))
		return a.finish(Report{Outcome: Discarded, Source: SourceRadio, Event: ev, Frame: frame})
	}

	if ev.Type == protocol.TypeAck {
		return a.receiveAck(ev, frame)
	}
	return a.receiveHit(ev, frame)
}

func (a *Arbiter) receiveHit(ev protocol.Event, frame []byte) Report {
	a.hitsReceived.Add(context.Background(), 1)

	if !a.deps.Match.Active() && !a.policy.DecrementWhenInactive {
		a.deps.Logger.Info("HIT ignored, match inactive", "from", ev.From)
		return a.finish(Report{Outcome: Ignored, Source: SourceRadio, Event: ev, Frame: frame})
	}

	if a.isDuplicate(ev) {
		a.deps.Logger.Info("Duplicate HIT, re-acknowledging", "from", ev.From, "seq", ev.Seq)
		_, err := a.sendAck(ev)
		return a.finish(Report{Outcome: Duplicate, Source: SourceRadio, Event: ev, Frame: frame, Err: err})
	}

	lives, known := a.deps.Registry.DecrementLife(a.self)
	_, ackErr := a.sendAck(ev)

	if a.deps.Broadcaster != nil {
		a.deps.Broadcaster.PushSnapshot()
	}

	if !known {
		a.deps.Logger.Warn("HIT received but own plane is not registered", "from", ev.From)
		return a.finish(Report{Outcome: HitAcked, Source: SourceRadio, Event: ev, Frame: frame, Err: ackErr})
	}

	if lives == 0 {
		a.deps.Logger.Info("Plane eliminated", "by", ev.From)
	} else {
		a.deps.Logger.Info("Hit by enemy", "from", ev.From, "livesLeft", lives)
	}
	return a.finish(Report{Outcome: LifeLost, Source: SourceRadio, Event: ev, Frame: frame, Lives: lives, Err: ackErr})
}

func (a *Arbiter) sendAck(hit protocol.Event) (protocol.Event, error) {
	ack := protocol.Event{
		Type:      protocol.TypeAck,
		From:      a.self,
		To:        hit.From,
		Timestamp: a.uptimeMillis(),
		Seq:       hit.Seq,
	}
	_, err := a.transmit(ack)
	if err != nil {
		a.deps.Logger.Warn("ACK not sent", "to", hit.From, "error", err)
	}
	return ack, err
}

func (a *Arbiter) receiveAck(ev protocol.Event, frame []byte) Report {
	a.acksReceived.Add(context.Background(), 1)

	a.mu.Lock()
	matched := a.clearPending(ev)
	a.mu.Unlock()

	a.deps.Logger.Info("ACK received", "from", ev.From, "seq", ev.Seq, "matched", matched)
	return a.finish(Report{Outcome: AckReceived, Source: SourceRadio, Event: ev, Frame: frame})
}

// transmit encodes and sends ev, and plays feedback for the frame type on success.
func (a *Arbiter) transmit(ev protocol.Event) ([]byte, error) {
	frame, err := a.deps.Codec.Encode(ev)
	if err != nil {
		return nil, err
	}
	if err := a.deps.Radio.Transmit(frame); err != nil {
		return frame, fmt.Errorf("transmit %s: %w", ev.Type, err)
	}
	if a.deps.Indicator != nil {
		if ev.Type == protocol.TypeHit {
			a.deps.Indicator.Signal(indicator.FeedbackHit)
		} else {
			a.deps.Indicator.Signal(indicator.FeedbackAck)
		}
	}
	return frame, nil
}

// isDuplicate records ev and reports whether the same HIT was seen within
// the dedup window. Frames without a sequence number are never duplicates.
func (a *Arbiter) isDuplicate(ev protocol.Event) bool {
	if a.policy.DedupWindow <= 0 || ev.Seq == 0 {
		return false
	}
	now := a.deps.Clock()

	a.mu.Lock()
	defer a.mu.Unlock()

	for k, at := range a.seen {
		if now.Sub(at) >= a.policy.DedupWindow {
			delete(a.seen, k)
		}
	}

	key := dedupKey{from: ev.From, seq: ev.Seq}
	if _, ok := a.seen[key]; ok {
		return true
	}
	a.seen[key] = now
	return false
}

// clearPending removes the pending HIT matched by ack. A legacy ACK without
// a sequence number clears the oldest HIT sent to its sender. Caller holds mu.
func (a *Arbiter) clearPending(ack protocol.Event) bool {
	if ack.Seq != 0 {
		p, ok := a.pending[ack.Seq]
		if !ok || p.to != ack.From {
			return false
		}
		delete(a.pending, ack.Seq)
		return true
	}

	var (
		oldestSeq uint32
		oldestAt  time.Time
		found     bool
	)
	for seq, p := range a.pending {
		if p.to == ack.From && (!found || p.sentAt.Before(oldestAt)) {
			oldestSeq, oldestAt, found = seq, p.sentAt, true
		}
	}
	if found {
		delete(a.pending, oldestSeq)
	}
	return found
}

// prunePending drops HITs that were never acknowledged. Caller holds mu.
func (a *Arbiter) prunePending() {
	now := a.deps.Clock()
	for seq, p := range a.pending {
		if now.Sub(p.sentAt) > pendingTTL {
			delete(a.pending, seq)
		}
	}
}

// PendingAcks returns how many sent HITs still await an ACK.
func (a *Arbiter) PendingAcks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prunePending()
	return len(a.pending)
}

func (a *Arbiter) nextSeq() uint32 {
	for {
		if s := a.seq.Add(1); s != 0 {
			return s
		}
	}
}

func (a *Arbiter) uptimeMillis() int64 {
	return a.deps.Clock().Sub(a.start).Milliseconds()
}

func (a *Arbiter) finish(r Report) Report {
	if r.Outcome != LifeLost {
		r.Lives = -1
	}
	r.At = a.deps.Clock()
	if a.deps.Recorder != nil {
		a.deps.Recorder.RecordCombat(r)
	}
	return r
}
