package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// PhaseObserver получает каждый переход автомата.
// Наблюдатели вызываются в отдельной горутине в порядке переходов.
type PhaseObserver func(change entity.PhaseChange)

// phaseQueueSize — сколько переходов может ждать медленных наблюдателей.
const phaseQueueSize = 64

// phaseEvent — переход для наблюдателей либо метка Flush (done != nil).
type phaseEvent struct {
	change entity.PhaseChange
	done   chan struct{}
}

// FlightController — автомат INIT → ARMING → TAKEOFF → TRACKING/HOLD → LANDING.
type FlightController struct {
	cfg       config.ControllerConfig
	positions port.PositionReader
	metrics   port.MetricsRecorder

	mu        sync.RWMutex
	phase     entity.FlightPhase
	link      port.FlightLink
	observers []PhaseObserver
	events    chan phaseEvent

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewFlightController создаёт автомат в фазе INIT.
func NewFlightController(cfg config.ControllerConfig, positions port.PositionReader, metrics port.MetricsRecorder) *FlightController {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	c := &FlightController{
		cfg:       cfg,
		positions: positions,
		metrics:   metrics,
		phase:     entity.PhaseInit,
		events:    make(chan phaseEvent, phaseQueueSize),
	}
	go c.dispatch()
	return c
}

// OnPhase подписывает наблюдателя на переходы.
func (c *FlightController) OnPhase(obs PhaseObserver) {
	c.mu.Lock()
	c.observers = append(c.observers, obs)
	c.mu.Unlock()
}

// Flush ждёт, пока наблюдатели получат все уже случившиеся переходы.
func (c *FlightController) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.events <- phaseEvent{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Phase возвращает текущую фазу.
func (c *FlightController) Phase() entity.FlightPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Run ведёт полёт по установленному соединению до отмены контекста.
// Отмена контекста — штатный запрос на завершение, а не ошибка.
func (c *FlightController) Run(ctx context.Context, link port.FlightLink) error {
	c.mu.Lock()
	c.link = link
	c.mu.Unlock()

	c.transition(entity.PhaseArming, "link connected")
	if err := c.arm(ctx, link); err != nil {
		return c.abort(ctx, err)
	}

	c.transition(entity.PhaseTakeoff, "armed")
	if err := c.takeoff(ctx, link); err != nil {
		return c.abort(ctx, err)
	}

	c.transition(entity.PhaseTracking, "target altitude reached")
	return c.track(ctx, link)
}

func (c *FlightController) arm(ctx context.Context, link port.FlightLink) error {
	if err := c.waitFor(ctx, "wait armable", c.cfg.ArmableTimeout, link.IsArmable); err != nil {
		return err
	}
	logrus.Info("vehicle is armable, arming")
	if err := link.Arm(ctx); err != nil {
		return entity.NewLinkError(entity.LinkCommand, "arm", err)
	}
	return c.waitFor(ctx, "wait armed", c.cfg.ArmTimeout, link.IsArmed)
}

func (c *FlightController) takeoff(ctx context.Context, link port.FlightLink) error {
	target := c.cfg.TargetAltitude
	logrus.WithField("altitude", target).Info("taking off")
	if err := link.Takeoff(ctx, target); err != nil {
		return entity.NewLinkError(entity.LinkCommand, "takeoff", err)
	}
	return c.waitFor(ctx, "wait altitude", c.cfg.TakeoffTimeout, func(ctx context.Context) (bool, error) {
		alt, err := link.Altitude(ctx)
		if err != nil {
			return false, err
		}
		logrus.WithField("altitude", alt).Debug("climbing")
		return alt >= target*c.cfg.TakeoffReached, nil
	})
}

func (c *FlightController) track(ctx context.Context, link port.FlightLink) error {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		c.tick(ctx, link)
	}
}

// tick выдаёт не более одной команды за такт.
func (c *FlightController) tick(ctx context.Context, link port.FlightLink) {
	pos := c.positions.Read()
	alt, err := link.Altitude(ctx)
	if err != nil {
		logrus.WithError(err).Warn("altitude read failed, skipping tick")
		return
	}

	cmd, phase := c.Command(pos, alt)
	if cur := c.Phase(); cur != phase && !cur.Terminal() {
		c.transition(phase, holdReason(pos))
	}
	if err := link.SetVelocity(ctx, cmd); err != nil {
		logrus.WithError(err).Warn("set velocity failed")
		return
	}
	c.metrics.ObserveCommand(cmd)
}

// Command переводит снимок положения и высоту в команду скорости.
// Смещение, нормированное на половину кадра, используется как скорость
// напрямую (пропорциональное отображение без коэффициента).
// Правая сторона кадра — вправо (vy), верх кадра — вперёд (vx).
func (c *FlightController) Command(pos entity.TrackedPosition, altitude float64) (entity.ControlCommand, entity.FlightPhase) {
	var cmd entity.ControlCommand
	phase := entity.PhaseHold
	if pos.Usable() {
		nx, ny := pos.Normalized()
		cmd.VX = clamp(-ny, -c.cfg.MaxVelocity, c.cfg.MaxVelocity)
		cmd.VY = clamp(nx, -c.cfg.MaxVelocity, c.cfg.MaxVelocity)
		phase = entity.PhaseTracking
	}
	cmd.VZ = c.AltitudeCorrection(altitude)
	return cmd, phase
}

// AltitudeCorrection возвращает vz (вниз положительно): внутри полосы
// [target*low, target*high] коррекции нет.
func (c *FlightController) AltitudeCorrection(altitude float64) float64 {
	target := c.cfg.TargetAltitude
	switch {
	case altitude < target*c.cfg.AltToleranceLow:
		return -c.cfg.AltitudeNudge
	case altitude > target*c.cfg.AltToleranceHigh:
		return c.cfg.AltitudeNudge
	default:
		return 0
	}
}

// Shutdown переводит автомат в LANDING, командует посадку и закрывает
// соединение. Повторные вызовы возвращают результат первого.
func (c *FlightController) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		link := c.currentLink()
		if link == nil {
			return
		}
		c.transition(entity.PhaseLanding, "shutdown requested")
		var errs []error
		if err := link.Land(ctx); err != nil {
			errs = append(errs, entity.NewLinkError(entity.LinkCommand, "land", err))
		}
		if err := link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close link: %w", err))
		}
		c.shutdownErr = errors.Join(errs...)
		if c.shutdownErr != nil {
			logrus.WithError(c.shutdownErr).Error("landing sequence reported errors")
		} else {
			logrus.Info("land command issued, link closed")
		}
	})
	return c.shutdownErr
}

// waitFor опрашивает условие с нарастающим до PollMaxInterval интервалом,
// пока оно не выполнится, не истечёт timeout или не будет отменён ctx.
// Ошибка опроса не прерывает ожидание.
func (c *FlightController) waitFor(ctx context.Context, op string, timeout time.Duration, cond wait.ConditionWithContextFunc) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := wait.Backoff{
		Duration: c.cfg.PollInterval,
		Factor:   1.5,
		Jitter:   0.1,
		Steps:    math.MaxInt32,
		Cap:      c.cfg.PollMaxInterval,
	}
	err := backoff.DelayFunc().Until(wctx, true, false, func(ctx context.Context) (bool, error) {
		ok, err := cond(ctx)
		if err == nil && ok {
			return true, nil
		}
		log := logrus.WithFields(logrus.Fields{"op": op, "phase": c.Phase()})
		if err != nil {
			log = log.WithError(err)
		}
		log.Info("waiting for vehicle")
		return false, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return entity.NewLinkError(entity.LinkTimeout, op, err)
}

// abort завершает Run: отмена контекста — штатная остановка, остальное — FAILED.
func (c *FlightController) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	c.transition(entity.PhaseFailed, err.Error())
	return err
}

func (c *FlightController) transition(to entity.FlightPhase, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.phase
	if from == to || from == entity.PhaseLanding {
		return
	}
	c.phase = to

	logrus.WithFields(logrus.Fields{"from": from, "to": to, "reason": reason}).Info("flight phase changed")
	c.metrics.ObservePhase(to)

	// Управление не ждёт наблюдателей: при переполненной очереди переход только логируется.
	select {
	case c.events <- phaseEvent{change: entity.PhaseChange{From: from, To: to, Reason: reason}}:
	default:
		logrus.WithFields(logrus.Fields{"from": from, "to": to}).Warn("phase observers are lagging, notification dropped")
	}
}

// dispatch доставляет переходы наблюдателям, пока жив контроллер.
func (c *FlightController) dispatch() {
	for ev := range c.events {
		if ev.done != nil {
			close(ev.done)
			continue
		}
		c.mu.RLock()
		observers := append([]PhaseObserver(nil), c.observers...)
		c.mu.RUnlock()
		for _, obs := range observers {
			obs(ev.change)
		}
	}
}

func (c *FlightController) currentLink() port.FlightLink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link
}

func holdReason(pos entity.TrackedPosition) string {
	switch {
	case !pos.Valid:
		return "beacon not acquired yet"
	case pos.Stale:
		return fmt.Sprintf("beacon lost for %d frames", pos.Misses)
	default:
		return "beacon tracked"
	}
}

// clamp ограничивает значение отрезком [lo, hi].
func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
