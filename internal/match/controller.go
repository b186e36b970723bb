// Package match runs the plane's control loop and owns the match lifecycle:
// starting and ending matches, registering companion apps and turning their
// hit requests into radio HITs.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/camera"
	"github.com/aeroduel/plane/internal/protocol"
	"github.com/aeroduel/plane/internal/registry"
	"github.com/aeroduel/plane/pkg/core"
	"github.com/aeroduel/plane/pkg/streaming"
)

var (
	ErrUnauthorized  = errors.New("invalid authToken")
	ErrUnknownTarget = errors.New("target not found")
	ErrSelfTarget    = errors.New("cannot target own plane")
	ErrStopped       = errors.New("control loop stopped")
	ErrRunning       = errors.New("control loop already running")
)

// SelfUserID is the user id the controller registers its own plane under.
const SelfUserID = "local"

// Arbiter is the subset of the combat arbiter the controller drives.
type Arbiter interface {
	OnCameraHit() arbiter.Report
	OnRadioPacket(frame []byte) arbiter.Report
	Originate(target string) arbiter.Report
	PendingAcks() int
}

// Broadcaster pushes the roster to companion apps.
type Broadcaster interface {
	PushSnapshot()
}

// Recorder journals match starts and ends. It must not block.
type Recorder interface {
	RecordMatch(core.MatchRecord)
}

// Dependencies holds the controller's collaborators. Broadcaster and
// Recorder may be nil.
type Dependencies struct {
	Registry    *registry.Registry
	Arbiter     Arbiter
	State       *State
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      *slog.Logger
}

// Config holds the match rules the controller applies.
type Config struct {
	PlaneID            string
	ResetLivesOnStart  bool
	RequireKnownTarget bool
	// RequestBuffer is how many companion requests may wait for the loop.
	RequestBuffer int
}

// Snapshot is the match view served to companion apps.
type Snapshot struct {
	Board       string            `json:"board"`
	MatchActive bool              `json:"matchActive"`
	Planes      []streaming.Plane `json:"planes"`
}

type request struct {
	fn   func()
	done chan struct{}
}

// Controller sequences camera lines, radio frames and companion requests on
// a single goroutine so registry mutations never interleave.
type Controller struct {
	deps Dependencies
	cfg  Config

	requests chan request
	stopped  chan struct{}
	running  atomic.Bool
}

// NewController creates a controller. Registry, Arbiter and State are required.
func NewController(deps Dependencies, cfg Config) (*Controller, error) {
	if deps.Registry == nil || deps.Arbiter == nil || deps.State == nil {
		return nil, errors.New("match: registry, arbiter and state are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.RequestBuffer <= 0 {
		cfg.RequestBuffer = 16
	}
	return &Controller{
		deps:     deps,
		cfg:      cfg,
		requests: make(chan request, cfg.RequestBuffer),
		stopped:  make(chan struct{}),
	}, nil
}

// RegisterSelf registers this board's own plane so that it appears in the
// roster and can lose lives.
func (c *Controller) RegisterSelf() error {
	_, err := c.RegisterPlane(c.cfg.PlaneID, SelfUserID)
	return err
}

// StartMatch activates the match, resetting lives when configured to.
func (c *Controller) StartMatch() {
	changed := c.deps.State.Set(true)
	if c.cfg.ResetLivesOnStart {
		c.deps.Registry.ResetLives()
	}
	c.deps.Logger.Info("Match started", "changed", changed, "livesReset", c.cfg.ResetLivesOnStart)
	c.record(true)
	c.pushSnapshot()
}

// EndMatch deactivates the match.
func (c *Controller) EndMatch() {
	changed := c.deps.State.Set(false)
	c.deps.Logger.Info("Match ended", "changed", changed)
	c.record(false)
	c.pushSnapshot()
}

// Active reports whether a match is running.
func (c *Controller) Active() bool {
	return c.deps.State.Active()
}

// RegisterPlane registers a plane or brings an existing one back online and
// returns its session token.
func (c *Controller) RegisterPlane(planeID, userID string) (string, error) {
	if planeID != "" && !protocol.ValidID(planeID) {
		return "", fmt.Errorf("%w: %q", registry.ErrInvalidID, planeID)
	}
	token, created, err := c.deps.Registry.Register(planeID, userID)
	if err != nil {
		c.deps.Logger.Warn("Registration rejected", "planeId", planeID, "error", err)
		return "", err
	}
	if created {
		c.deps.Logger.Info("Registered plane", "planeId", planeID, "userId", userID)
	} else {
		c.deps.Logger.Info("Plane back online", "planeId", planeID)
	}
	c.pushSnapshot()
	return token, nil
}

// RequestHit sends a HIT on behalf of the companion app holding token.
// It does not check the match state.
func (c *Controller) RequestHit(token, targetID string) (arbiter.Report, error) {
	shooter, ok := c.deps.Registry.FindByToken(token)
	if !ok {
		return arbiter.Report{}, ErrUnauthorized
	}
	if targetID == shooter.PlaneID || targetID == c.cfg.PlaneID {
		return arbiter.Report{}, fmt.Errorf("%w: %s", ErrSelfTarget, targetID)
	}
	if !protocol.ValidID(targetID) {
		return arbiter.Report{}, fmt.Errorf("%w: %q", ErrUnknownTarget, targetID)
	}
	if c.cfg.RequireKnownTarget {
		if _, ok := c.deps.Registry.FindByID(targetID); !ok {
			return arbiter.Report{}, fmt.Errorf("%w: %s", ErrUnknownTarget, targetID)
		}
	}

	c.deps.Logger.Info("Companion hit request", "shooter", shooter.PlaneID, "target", targetID)
	return c.deps.Arbiter.Originate(targetID), nil
}

// Disconnect marks a plane offline so it is no longer targeted.
func (c *Controller) Disconnect(planeID string) bool {
	if !c.deps.Registry.SetOnline(planeID, false) {
		return false
	}
	c.deps.Logger.Info("Plane offline", "planeId", planeID)
	c.pushSnapshot()
	return true
}

// Leave marks the plane holding token offline and returns its id.
func (c *Controller) Leave(token string) (string, error) {
	p, ok := c.deps.Registry.FindByToken(token)
	if !ok {
		return "", ErrUnauthorized
	}
	c.Disconnect(p.PlaneID)
	return p.PlaneID, nil
}

// SnapshotForBroadcast returns the match view. It is safe to call from any goroutine.
func (c *Controller) SnapshotForBroadcast() Snapshot {
	return Snapshot{
		Board:       c.cfg.PlaneID,
		MatchActive: c.deps.State.Active(),
		Planes:      Roster(c.deps.Registry).Planes,
	}
}

// PendingAcks returns how many sent HITs still await an ACK.
func (c *Controller) PendingAcks() int {
	return c.deps.Arbiter.PendingAcks()
}

// Roster converts the registry snapshot to the push-channel payload.
func Roster(reg *registry.Registry) streaming.Roster {
	snap := reg.Snapshot()
	planes := make([]streaming.Plane, len(snap))
	for i, p := range snap {
		planes[i] = streaming.Plane{PlaneID: p.PlaneID, IsOnline: p.IsOnline, Lives: p.Lives}
	}
	return streaming.Roster{Planes: planes}
}

// Do runs fn on the control loop and waits for it to finish. If ctx ends
// after fn was queued, fn may still run later.
func (c *Controller) Do(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}

	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

type inputs struct {
	camera <-chan string
	radio  <-chan []byte
}

// Run is the control loop. Each iteration handles at most one camera line,
// then one radio frame, then one companion request; when none is ready it
// blocks until one is. A closed input channel is dropped. Run returns nil
// when ctx is cancelled.
func (c *Controller) Run(ctx context.Context, lines <-chan string, frames <-chan []byte) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.stopped)

	in := &inputs{camera: lines, radio: frames}
	c.deps.Logger.Info("Control loop started", "planeId", c.cfg.PlaneID, "matchActive", c.deps.State.Active())

	for {
		if ctx.Err() != nil {
			c.deps.Logger.Info("Control loop stopped")
			return nil
		}
		if c.pollOnce(in) {
			continue
		}

		select {
		case <-ctx.Done():
		case line, ok := <-in.camera:
			c.handleLine(in, line, ok)
		case frame, ok := <-in.radio:
			c.handleFrame(in, frame, ok)
		case req := <-c.requests:
			c.handleRequest(req)
		}
	}
}

// pollOnce does one non-blocking pass over the inputs in priority order and
// reports whether anything was handled.
func (c *Controller) pollOnce(in *inputs) bool {
	worked := false

	select {
	case line, ok := <-in.camera:
		c.handleLine(in, line, ok)
		worked = true
	default:
	}

	select {
	case frame, ok := <-in.radio:
		c.handleFrame(in, frame, ok)
		worked = true
	default:
	}

	select {
	case req := <-c.requests:
		c.handleRequest(req)
		worked = true
	default:
	}

	return worked
}

func (c *Controller) handleLine(in *inputs, line string, ok bool) {
	if !ok {
		c.deps.Logger.Warn("Camera input closed")
		in.camera = nil
		return
	}
	if !camera.IsHit(line) {
		c.deps.Logger.Debug("Ignoring camera token", "token", line)
		return
	}
	c.deps.Arbiter.OnCameraHit()
}

func (c *Controller) handleFrame(in *inputs, frame []byte, ok bool) {
	if !ok {
		c.deps.Logger.Warn("Radio input closed")
		in.radio = nil
		return
	}
	c.deps.Arbiter.OnRadioPacket(frame)
}

func (c *Controller) handleRequest(req request) {
	defer close(req.done)
	defer func() {
		if r := recover(); r != nil {
			c.deps.Logger.Error("Companion request panicked", "panic", r)
		}
	}()
	req.fn()
}

func (c *Controller) record(active bool) {
	if c.deps.Recorder == nil {
		return
	}
	c.deps.Recorder.RecordMatch(core.MatchRecord{
		Time:       time.Now(),
		PlaneID:    c.cfg.PlaneID,
		Active:     active,
		LivesReset: active && c.cfg.ResetLivesOnStart,
	})
}

func (c *Controller) pushSnapshot() {
	if c.deps.Broadcaster != nil {
		c.deps.Broadcaster.PushSnapshot()
	}
}
