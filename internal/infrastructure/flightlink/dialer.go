package flightlink

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// SimScheme — схема адресов симулятора: sim://bench?armable_after=2s&climb_rate=1.5
const SimScheme = "sim"

// Dialer подключается к аппарату по адресу из конфигурации.
// Поддерживаются только адреса симулятора; остальные дают ошибку подключения.
type Dialer struct{}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Connect(ctx context.Context, endpoint string, baud int) (port.FlightLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.NewLinkError(entity.LinkConnection, "connect", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, entity.NewLinkError(entity.LinkConnection, "connect", fmt.Errorf("parse endpoint %q: %w", endpoint, err))
	}
	if u.Scheme != SimScheme {
		return nil, entity.NewLinkError(entity.LinkConnection, "connect", fmt.Errorf("unsupported endpoint %q", endpoint))
	}

	opts, err := parseSimOptions(u.Query())
	if err != nil {
		return nil, entity.NewLinkError(entity.LinkConnection, "connect", err)
	}

	logrus.WithFields(logrus.Fields{
		"endpoint":      endpoint,
		"baud":          baud,
		"armable_after": opts.ArmableAfter,
		"climb_rate":    opts.ClimbRate,
	}).Info("connected to simulated vehicle")
	return NewSimulatedLink(opts), nil
}

func parseSimOptions(q url.Values) (SimOptions, error) {
	opts := DefaultSimOptions()
	if v := q.Get("armable_after"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return opts, fmt.Errorf("armable_after: %w", err)
		}
		opts.ArmableAfter = d
	}
	if v := q.Get("climb_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return opts, fmt.Errorf("climb_rate must be a positive number, got %q", v)
		}
		opts.ClimbRate = f
	}
	return opts, nil
}

var _ port.LinkDialer = (*Dialer)(nil)
