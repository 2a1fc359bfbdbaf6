package port

import (
	"context"

	"beacon-pilot/internal/domain/entity"
)

// FlightLink канал команд и телеметрии аппарата
type FlightLink interface {
	IsArmable(ctx context.Context) (bool, error)
	Arm(ctx context.Context) error
	IsArmed(ctx context.Context) (bool, error)
	Takeoff(ctx context.Context, altitude float64) error
	Altitude(ctx context.Context) (float64, error)
	SetVelocity(ctx context.Context, cmd entity.ControlCommand) error
	Land(ctx context.Context) error
	Close() error
}

// LinkDialer устанавливает соединение с аппаратом
type LinkDialer interface {
	Connect(ctx context.Context, endpoint string, baud int) (FlightLink, error)
}

// PositionReader отдаёт последний опубликованный снимок положения маяка
type PositionReader interface {
	Read() entity.TrackedPosition
}
