package match

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeroduel/plane/internal/arbiter"
	"github.com/aeroduel/plane/internal/protocol"
	"github.com/aeroduel/plane/internal/registry"
	"github.com/aeroduel/plane/pkg/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// spyArbiter records calls in order.
type spyArbiter struct {
	mu    sync.Mutex
	calls []string
}

func (s *spyArbiter) add(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *spyArbiter) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyArbiter) OnCameraHit() arbiter.Report {
	s.add("camera")
	return arbiter.Report{Outcome: arbiter.HitSent}
}

func (s *spyArbiter) OnRadioPacket(frame []byte) arbiter.Report {
	s.add("radio:" + string(frame))
	return arbiter.Report{Outcome: arbiter.Discarded}
}

func (s *spyArbiter) Originate(target string) arbiter.Report {
	s.add("originate:" + target)
	return arbiter.Report{Outcome: arbiter.HitSent, Event: protocol.Event{Type: protocol.TypeHit, To: target}}
}

func (s *spyArbiter) PendingAcks() int { return 0 }

type countingBroadcaster struct {
	mu        sync.Mutex
	snapshots int
}

func (b *countingBroadcaster) PushSnapshot() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots++
}

func (b *countingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots
}

type matchRecorder struct{ records []core.MatchRecord }

func (r *matchRecorder) RecordMatch(rec core.MatchRecord) { r.records = append(r.records, rec) }

type fixture struct {
	ctrl     *Controller
	reg      *registry.Registry
	state    *State
	arb      *spyArbiter
	bcast    *countingBroadcaster
	recorder *matchRecorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.PlaneID == "" {
		cfg.PlaneID = "BOARD1"
	}
	f := &fixture{
		reg:      registry.New(5, 5),
		state:    NewState(true),
		arb:      &spyArbiter{},
		bcast:    &countingBroadcaster{},
		recorder: &matchRecorder{},
	}
	ctrl, err := NewController(Dependencies{
		Registry:    f.reg,
		Arbiter:     f.arb,
		State:       f.state,
		Broadcaster: f.bcast,
		Recorder:    f.recorder,
		Logger:      discard,
	}, cfg)
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func (f *fixture) run(t *testing.T, lines <-chan string, frames <-chan []byte) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx, lines, frames) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("control loop did not stop")
		}
	})
	return cancel
}

func TestNewController_RequiresDependencies(t *testing.T) {
	_, err := NewController(Dependencies{}, Config{})
	assert.Error(t, err)
}

func TestRegisterSelf(t *testing.T) {
	f := newFixture(t, Config{})

	require.NoError(t, f.ctrl.RegisterSelf())

	a, ok := f.reg.FindByID("BOARD1")
	require.True(t, ok)
	assert.Equal(t, SelfUserID, a.UserID)
	assert.Equal(t, 5, a.Lives)
}

func TestRegisterSelf_TakesOneSlot(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctrl.RegisterSelf())

	// maxPlanes counts the board itself: four companions fit
	for _, id := range []string{"P2", "P3", "P4", "P5"} {
		_, err := f.ctrl.RegisterPlane(id, "u-"+id)
		require.NoError(t, err, id)
	}
	_, err := f.ctrl.RegisterPlane("P6", "u-P6")
	assert.ErrorIs(t, err, registry.ErrFull)

	// a companion claiming the board's id shares its entry
	tok, err := f.ctrl.RegisterPlane("BOARD1", "pilot")
	require.NoError(t, err)
	a, ok := f.reg.FindByToken(tok)
	require.True(t, ok)
	assert.Equal(t, "BOARD1", a.PlaneID)
	assert.Equal(t, 5, f.reg.Len())
}

func TestRegisterPlane(t *testing.T) {
	f := newFixture(t, Config{})

	token, err := f.ctrl.RegisterPlane("P2", "alice")
	require.NoError(t, err)
	assert.Contains(t, token, "P2-")
	assert.Equal(t, 1, f.bcast.count())

	f.reg.SetOnline("P2", false)
	again, err := f.ctrl.RegisterPlane("P2", "alice")
	require.NoError(t, err)
	assert.Equal(t, token, again)
	a, _ := f.reg.FindByID("P2")
	assert.True(t, a.IsOnline)
	assert.Equal(t, 2, f.bcast.count())
}

func TestRegisterPlane_Rejected(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.ctrl.RegisterPlane("", "alice")
	assert.ErrorIs(t, err, registry.ErrInvalidID)

	_, err = f.ctrl.RegisterPlane(`P"2`, "alice")
	assert.ErrorIs(t, err, registry.ErrInvalidID)

	for _, id := range []string{"P1", "P2", "P3", "P4", "P5"} {
		_, err := f.ctrl.RegisterPlane(id, "u")
		require.NoError(t, err)
	}
	_, err = f.ctrl.RegisterPlane("P6", "u")
	assert.ErrorIs(t, err, registry.ErrFull)
	assert.Equal(t, 5, f.reg.Len())
	assert.Equal(t, 5, f.bcast.count(), "rejections are not broadcast")
}

func TestStartEndMatch(t *testing.T) {
	f := newFixture(t, Config{})
	f.state.Set(false)

	f.ctrl.StartMatch()
	assert.True(t, f.ctrl.Active())
	f.ctrl.EndMatch()
	assert.False(t, f.ctrl.Active())

	require.Len(t, f.recorder.records, 2)
	assert.True(t, f.recorder.records[0].Active)
	assert.False(t, f.recorder.records[1].Active)
	assert.Equal(t, "BOARD1", f.recorder.records[0].PlaneID)
	assert.Equal(t, 2, f.bcast.count())
}

func TestStartMatch_ResetLives(t *testing.T) {
	tests := []struct {
		name  string
		reset bool
		want  int
	}{
		{"keeps lives", false, 3},
		{"resets lives", true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{ResetLivesOnStart: tt.reset})
			f.reg.Register("P2", "alice")
			f.reg.DecrementLife("P2")
			f.reg.DecrementLife("P2")

			f.ctrl.StartMatch()

			a, _ := f.reg.FindByID("P2")
			assert.Equal(t, tt.want, a.Lives)
			assert.Equal(t, tt.reset, f.recorder.records[0].LivesReset)
		})
	}
}

func TestRequestHit(t *testing.T) {
	f := newFixture(t, Config{RequireKnownTarget: true})
	require.NoError(t, f.ctrl.RegisterSelf())
	token, err := f.ctrl.RegisterPlane("P2", "alice")
	require.NoError(t, err)
	_, err = f.ctrl.RegisterPlane("P3", "bob")
	require.NoError(t, err)

	t.Run("invalid token", func(t *testing.T) {
		_, err := f.ctrl.RequestHit("nope", "P3")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("own plane", func(t *testing.T) {
		_, err := f.ctrl.RequestHit(token, "P2")
		assert.ErrorIs(t, err, ErrSelfTarget)
	})

	t.Run("this board", func(t *testing.T) {
		_, err := f.ctrl.RequestHit(token, "BOARD1")
		assert.ErrorIs(t, err, ErrSelfTarget)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.ctrl.RequestHit(token, "P9")
		assert.ErrorIs(t, err, ErrUnknownTarget)
	})

	assert.Empty(t, f.arb.Calls(), "rejected requests transmit nothing")

	t.Run("valid", func(t *testing.T) {
		rep, err := f.ctrl.RequestHit(token, "P3")
		require.NoError(t, err)
		assert.Equal(t, arbiter.HitSent, rep.Outcome)
		assert.Equal(t, []string{"originate:P3"}, f.arb.Calls())
	})
}

func TestRequestHit_UnknownTargetAllowed(t *testing.T) {
	f := newFixture(t, Config{RequireKnownTarget: false})
	token, err := f.ctrl.RegisterPlane("P2", "alice")
	require.NoError(t, err)

	_, err = f.ctrl.RequestHit(token, "P9")
	require.NoError(t, err)
	assert.Equal(t, []string{"originate:P9"}, f.arb.Calls())

	_, err = f.ctrl.RequestHit(token, "bad\nid")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestRequestHit_IgnoresMatchState(t *testing.T) {
	f := newFixture(t, Config{RequireKnownTarget: true})
	f.state.Set(false)
	token, _ := f.ctrl.RegisterPlane("P2", "alice")
	f.ctrl.RegisterPlane("P3", "bob")

	_, err := f.ctrl.RequestHit(token, "P3")
	require.NoError(t, err)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, Config{})
	f.ctrl.RegisterPlane("P2", "alice")

	assert.True(t, f.ctrl.Disconnect("P2"))
	assert.False(t, f.ctrl.Disconnect("P9"))

	a, _ := f.reg.FindByID("P2")
	assert.False(t, a.IsOnline)
}

func TestLeave(t *testing.T) {
	f := newFixture(t, Config{})
	token, err := f.ctrl.RegisterPlane("P2", "alice")
	require.NoError(t, err)

	id, err := f.ctrl.Leave(token)
	require.NoError(t, err)
	assert.Equal(t, "P2", id)

	a, _ := f.reg.FindByID("P2")
	assert.False(t, a.IsOnline)

	_, err = f.ctrl.Leave("bogus")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSnapshotForBroadcast(t *testing.T) {
	f := newFixture(t, Config{})
	snap := f.ctrl.SnapshotForBroadcast()
	assert.Equal(t, "BOARD1", snap.Board)
	assert.True(t, snap.MatchActive)
	assert.NotNil(t, snap.Planes)
	assert.Empty(t, snap.Planes)

	f.ctrl.RegisterSelf()
	f.ctrl.RegisterPlane("P2", "alice")
	f.reg.DecrementLife("P2")

	snap = f.ctrl.SnapshotForBroadcast()
	require.Len(t, snap.Planes, 2)
	assert.Equal(t, "BOARD1", snap.Planes[0].PlaneID)
	assert.Equal(t, "P2", snap.Planes[1].PlaneID)
	assert.Equal(t, 4, snap.Planes[1].Lives)
	assert.True(t, snap.Planes[1].IsOnline)
}

func TestRun_CameraBeforeRadio(t *testing.T) {
	f := newFixture(t, Config{})
	lines := make(chan string, 2)
	frames := make(chan []byte, 2)
	lines <- "HIT"
	lines <- "HIT"
	frames <- []byte("a")
	frames <- []byte("b")

	f.run(t, lines, frames)

	require.Eventually(t, func() bool { return len(f.arb.Calls()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"camera", "radio:a", "camera", "radio:b"}, f.arb.Calls())
}

func TestRun_IgnoresOtherCameraTokens(t *testing.T) {
	f := newFixture(t, Config{})
	lines := make(chan string, 3)
	lines <- "READY"
	lines <- "hit"
	lines <- "HIT"

	f.run(t, lines, nil)

	require.Eventually(t, func() bool { return len(f.arb.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"camera"}, f.arb.Calls())
}

func TestRun_ClosedInputsKeepLoopAlive(t *testing.T) {
	f := newFixture(t, Config{})
	lines := make(chan string)
	frames := make(chan []byte)
	close(lines)
	close(frames)

	f.run(t, lines, frames)

	var token string
	err := f.ctrl.Do(context.Background(), func() {
		token, _ = f.ctrl.RegisterPlane("P2", "alice")
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestRun_TwiceFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.run(t, nil, nil)

	require.Eventually(t, func() bool { return f.ctrl.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, f.ctrl.Run(context.Background(), nil, nil), ErrRunning)
}

func TestDo_RunsOnLoop(t *testing.T) {
	f := newFixture(t, Config{})
	f.run(t, nil, nil)

	ran := false
	require.NoError(t, f.ctrl.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestDo_SurvivesPanic(t *testing.T) {
	f := newFixture(t, Config{})
	f.run(t, nil, nil)

	require.NoError(t, f.ctrl.Do(context.Background(), func() { panic("boom") }))
	require.NoError(t, f.ctrl.Do(context.Background(), func() {}))
}

func TestDo_AfterStop(t *testing.T) {
	f := newFixture(t, Config{})
	cancel := f.run(t, nil, nil)
	require.Eventually(t, func() bool { return f.ctrl.running.Load() }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-f.ctrl.stopped:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	// fill the request buffer so the send cannot succeed
	for i := 0; i < cap(f.ctrl.requests); i++ {
		f.ctrl.requests <- request{fn: func() {}, done: make(chan struct{})}
	}
	assert.ErrorIs(t, f.ctrl.Do(context.Background(), func() {}), ErrStopped)
}

func TestDo_ContextCancelled(t *testing.T) {
	f := newFixture(t, Config{RequestBuffer: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// loop not running, the request waits until ctx expires
	err := f.ctrl.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRoster_NonNilPlanes(t *testing.T) {
	r := Roster(registry.New(5, 5))
	assert.NotNil(t, r.Planes)
}
