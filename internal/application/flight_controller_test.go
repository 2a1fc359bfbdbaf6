package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
)

// fakeLink — аппарат в памяти: взлетает мгновенно и записывает команды.
type fakeLink struct {
	mu         sync.Mutex
	armable    bool
	armed      bool
	altitude   float64
	armCalls   int
	landCalls  int
	closeCalls int
	velocities []entity.ControlCommand
	altErr     error
}

func (l *fakeLink) IsArmable(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armable, nil
}

func (l *fakeLink) Arm(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armCalls++
	l.armed = true
	return nil
}

func (l *fakeLink) IsArmed(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed, nil
}

func (l *fakeLink) Takeoff(_ context.Context, altitude float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.altitude = altitude
	return nil
}

func (l *fakeLink) Altitude(context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.altitude, l.altErr
}

func (l *fakeLink) SetVelocity(_ context.Context, cmd entity.ControlCommand) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.velocities = append(l.velocities, cmd)
	return nil
}

func (l *fakeLink) Land(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.landCalls++
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeCalls++
	return nil
}

func (l *fakeLink) commands() []entity.ControlCommand {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entity.ControlCommand(nil), l.velocities...)
}

func testControllerConfig() config.ControllerConfig {
	cfg := config.Default().Controller
	cfg.Tick = 5 * time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.ArmableTimeout = 50 * time.Millisecond
	cfg.ArmTimeout = 50 * time.Millisecond
	cfg.TakeoffTimeout = 50 * time.Millisecond
	return cfg
}

func trackedAt(dx, dy float64) entity.TrackedPosition {
	return entity.TrackedPosition{DX: dx, DY: dy, FrameWidth: 400, FrameHeight: 300, Valid: true}
}

func TestFlightController_Command(t *testing.T) {
	cfg := testControllerConfig()
	cfg.MaxVelocity = 0.5
	c := NewFlightController(cfg, nil, nil)
	alt := cfg.TargetAltitude

	tests := []struct {
		name  string
		pos   entity.TrackedPosition
		want  entity.ControlCommand
		phase entity.FlightPhase
	}{
		{name: "centered", pos: trackedAt(0, 0), phase: entity.PhaseTracking},
		{name: "right of center", pos: trackedAt(40, 0), want: entity.ControlCommand{VY: 0.2}, phase: entity.PhaseTracking},
		{name: "above center", pos: trackedAt(0, -30), want: entity.ControlCommand{VX: 0.2}, phase: entity.PhaseTracking},
		{name: "frame corner", pos: trackedAt(200, 150), want: entity.ControlCommand{VX: -0.5, VY: 0.5}, phase: entity.PhaseTracking},
		{name: "beyond frame", pos: trackedAt(-800, -600), want: entity.ControlCommand{VX: 0.5, VY: -0.5}, phase: entity.PhaseTracking},
		{name: "never detected", pos: entity.TrackedPosition{}, phase: entity.PhaseHold},
		{name: "stale", pos: entity.TrackedPosition{DX: 100, DY: 100, FrameWidth: 400, FrameHeight: 300, Valid: true, Stale: true, Misses: 10}, phase: entity.PhaseHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, phase := c.Command(tt.pos, alt)
			require.Equal(t, tt.phase, phase)
			require.InDelta(t, tt.want.VX, cmd.VX, 1e-9)
			require.InDelta(t, tt.want.VY, cmd.VY, 1e-9)
			require.Zero(t, cmd.VZ)
		})
	}
}

func TestFlightController_AltitudeCorrection(t *testing.T) {
	cfg := testControllerConfig()
	cfg.TargetAltitude = 10
	c := NewFlightController(cfg, nil, nil)

	require.Equal(t, -cfg.AltitudeNudge, c.AltitudeCorrection(5))
	require.Equal(t, -cfg.AltitudeNudge, c.AltitudeCorrection(9.4))
	require.Zero(t, c.AltitudeCorrection(9.5))
	require.Zero(t, c.AltitudeCorrection(10))
	require.Zero(t, c.AltitudeCorrection(11))
	require.Equal(t, cfg.AltitudeNudge, c.AltitudeCorrection(11.5))

	cmd, phase := c.Command(entity.TrackedPosition{}, 20)
	require.Equal(t, entity.PhaseHold, phase)
	require.Equal(t, entity.ControlCommand{VZ: cfg.AltitudeNudge}, cmd)
}

func TestFlightController_NeverArmable(t *testing.T) {
	tracker := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})
	c := NewFlightController(testControllerConfig(), tracker, nil)
	link := &fakeLink{}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), link) }()
	require.Eventually(t, func() bool { return c.Phase() == entity.PhaseArming }, time.Second, time.Millisecond)

	err := <-done
	require.Error(t, err)
	require.True(t, entity.IsTimeout(err))
	require.Equal(t, entity.PhaseFailed, c.Phase())
	require.Zero(t, link.armCalls)
	require.Empty(t, link.commands())
}

func TestFlightController_CancelWhileArming(t *testing.T) {
	c := NewFlightController(testControllerConfig(), nil, nil)
	c.cfg.ArmableTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Run(ctx, &fakeLink{}))
	require.Equal(t, entity.PhaseArming, c.Phase())
}

func TestFlightController_FullFlight(t *testing.T) {
	tracker := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})
	c := NewFlightController(testControllerConfig(), tracker, nil)
	link := &fakeLink{armable: true}

	var mu sync.Mutex
	var seen []entity.FlightPhase
	c.OnPhase(func(change entity.PhaseChange) {
		mu.Lock()
		seen = append(seen, change.To)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, link) }()

	// Без маяка аппарат висит на месте.
	require.Eventually(t, func() bool { return c.Phase() == entity.PhaseHold }, time.Second, time.Millisecond)

	tracker.Update(beaconAt(300, 150), 400, 300)
	require.Eventually(t, func() bool {
		cmds := link.commands()
		return c.Phase() == entity.PhaseTracking && len(cmds) > 0 && cmds[len(cmds)-1].VY == 0.5
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	require.Equal(t, entity.PhaseLanding, c.Phase())
	require.Equal(t, 1, link.landCalls)
	require.Equal(t, 1, link.closeCalls)

	require.NoError(t, c.Flush(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []entity.FlightPhase{
		entity.PhaseArming,
		entity.PhaseTakeoff,
		entity.PhaseTracking,
		entity.PhaseHold,
		entity.PhaseTracking,
		entity.PhaseLanding,
	}, seen)
}

func TestFlightController_SlowObserverDoesNotDelayLanding(t *testing.T) {
	tracker := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})
	c := NewFlightController(testControllerConfig(), tracker, nil)
	link := &fakeLink{armable: true}

	release := make(chan struct{})
	defer close(release)
	c.OnPhase(func(change entity.PhaseChange) {
		if change.To == entity.PhaseLanding {
			<-release
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, link) }()
	require.Eventually(t, func() bool { return c.Phase() == entity.PhaseHold }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer stop()
	require.NoError(t, c.Shutdown(shutdownCtx))
	require.Equal(t, 1, link.landCalls)
	require.Equal(t, 1, link.closeCalls)

	// Наблюдатель всё ещё висит на LANDING.
	flushCtx, stopFlush := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stopFlush()
	require.ErrorIs(t, c.Flush(flushCtx), context.DeadlineExceeded)
}

func TestFlightController_SlowObserverDoesNotStallTicks(t *testing.T) {
	tracker := NewPositionTracker(config.TrackerConfig{StaleAfter: 1})
	c := NewFlightController(testControllerConfig(), tracker, nil)
	link := &fakeLink{altitude: 10}

	release := make(chan struct{})
	defer close(release)
	c.OnPhase(func(entity.PhaseChange) { <-release })

	for i := 0; i < 2*phaseQueueSize; i++ {
		if i%2 == 0 {
			tracker.Update(beaconAt(300, 150), 400, 300)
		} else {
			tracker.Update(nil, 400, 300)
		}
		c.tick(context.Background(), link)
	}
	require.Len(t, link.commands(), 2*phaseQueueSize)
	require.Equal(t, entity.PhaseHold, c.Phase())
}

func TestFlightController_WaitForKeepsPollingAtCap(t *testing.T) {
	cfg := testControllerConfig()
	cfg.ArmableTimeout = time.Second
	c := NewFlightController(cfg, nil, nil)

	// Интервал упирается в PollMaxInterval уже к пятому опросу.
	calls := 0
	err := c.waitFor(context.Background(), "wait armable", cfg.ArmableTimeout, func(context.Context) (bool, error) {
		calls++
		if calls < 4 {
			return false, errors.New("heartbeat missing")
		}
		return calls >= 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, 10, calls)
}

func TestFlightController_SkipsTickOnTelemetryError(t *testing.T) {
	tracker := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})
	c := NewFlightController(testControllerConfig(), tracker, nil)
	link := &fakeLink{altErr: errors.New("telemetry lost")}

	c.tick(context.Background(), link)
	require.Empty(t, link.commands())
	require.Equal(t, entity.PhaseInit, c.Phase())
}

func TestFlightController_ShutdownWithoutLink(t *testing.T) {
	c := NewFlightController(testControllerConfig(), nil, nil)

	require.NoError(t, c.Shutdown(context.Background()))
	require.Equal(t, entity.PhaseInit, c.Phase())
}
