// Package flightlink содержит реализации канала управления аппаратом.
package flightlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

const (
	ModeStabilize = "STABILIZE"
	ModeGuided    = "GUIDED"
	ModeLand      = "LAND"
)

// SimOptions параметры модели аппарата.
type SimOptions struct {
	ArmableAfter time.Duration // через сколько после подключения аппарат готов к взведению
	ClimbRate    float64       // скорость набора высоты и посадки, м/с
}

// DefaultSimOptions — аппарат готов сразу и поднимается со скоростью 1 м/с.
func DefaultSimOptions() SimOptions {
	return SimOptions{ClimbRate: 1}
}

// SimulatedLink — аппарат в памяти для стендовых прогонов и тестов.
type SimulatedLink struct {
	opts SimOptions
	now  func() time.Time

	mu          sync.Mutex
	connectedAt time.Time
	updatedAt   time.Time
	mode        string
	armed       bool
	closed      bool
	altitude    float64
	takeoffTo   float64
	climbing    bool
	north, east float64
	velocity    entity.ControlCommand
}

// NewSimulatedLink создаёт подключённый аппарат на земле.
func NewSimulatedLink(opts SimOptions) *SimulatedLink {
	return newSimulatedLink(opts, time.Now)
}

func newSimulatedLink(opts SimOptions, now func() time.Time) *SimulatedLink {
	t := now()
	return &SimulatedLink{
		opts:        opts,
		now:         now,
		connectedAt: t,
		updatedAt:   t,
		mode:        ModeStabilize,
	}
}

func (l *SimulatedLink) IsArmable(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "is armable"); err != nil {
		return false, err
	}
	return l.now().Sub(l.connectedAt) >= l.opts.ArmableAfter, nil
}

// Arm переводит аппарат в GUIDED и взводит моторы.
func (l *SimulatedLink) Arm(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "arm"); err != nil {
		return err
	}
	if l.now().Sub(l.connectedAt) < l.opts.ArmableAfter {
		return errors.New("vehicle is not armable yet")
	}
	l.mode = ModeGuided
	l.armed = true
	return nil
}

func (l *SimulatedLink) IsArmed(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "is armed"); err != nil {
		return false, err
	}
	return l.armed, nil
}

func (l *SimulatedLink) Takeoff(ctx context.Context, altitude float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "takeoff"); err != nil {
		return err
	}
	if !l.armed {
		return errors.New("takeoff requires armed vehicle")
	}
	l.advance()
	l.takeoffTo = altitude
	l.climbing = true
	return nil
}

func (l *SimulatedLink) Altitude(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "altitude"); err != nil {
		return 0, err
	}
	l.advance()
	return l.altitude, nil
}

// SetVelocity задаёт скорость в связанной системе NED (vz вниз положительна).
func (l *SimulatedLink) SetVelocity(ctx context.Context, cmd entity.ControlCommand) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "set velocity"); err != nil {
		return err
	}
	if l.mode != ModeGuided {
		return fmt.Errorf("velocity commands need %s mode, vehicle is in %s", ModeGuided, l.mode)
	}
	l.advance()
	l.climbing = false
	l.velocity = cmd
	return nil
}

func (l *SimulatedLink) Land(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.check(ctx, "land"); err != nil {
		return err
	}
	l.advance()
	l.mode = ModeLand
	l.climbing = false
	l.velocity = entity.ControlCommand{}
	return nil
}

func (l *SimulatedLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Mode возвращает текущий режим полётного контроллера.
func (l *SimulatedLink) Mode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// Offset возвращает смещение аппарата от точки взлёта (север, восток), м.
func (l *SimulatedLink) Offset() (north, east float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advance()
	return l.north, l.east
}

func (l *SimulatedLink) check(ctx context.Context, op string) error {
	if l.closed {
		return entity.NewLinkError(entity.LinkConnection, op, entity.ErrNoFlightLink)
	}
	return ctx.Err()
}

// advance интегрирует модель до текущего момента; вызывать под мьютексом.
func (l *SimulatedLink) advance() {
	t := l.now()
	dt := t.Sub(l.updatedAt).Seconds()
	l.updatedAt = t
	if dt <= 0 || !l.armed {
		return
	}

	switch {
	case l.mode == ModeLand:
		l.altitude -= l.opts.ClimbRate * dt
		if l.altitude <= 0 {
			l.altitude = 0
			l.armed = false
		}
	case l.climbing:
		l.altitude += l.opts.ClimbRate * dt
		if l.altitude >= l.takeoffTo {
			l.altitude = l.takeoffTo
			l.climbing = false
		}
	default:
		l.north += l.velocity.VX * dt
		l.east += l.velocity.VY * dt
		l.altitude -= l.velocity.VZ * dt
		if l.altitude < 0 {
			l.altitude = 0
		}
	}
}

var _ port.FlightLink = (*SimulatedLink)(nil)
