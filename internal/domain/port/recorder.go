package port

import (
	"context"

	"beacon-pilot/internal/domain/entity"
)

// DetectionPublisher передаёт результаты детекции внешним потребителям
type DetectionPublisher interface {
	Publish(ctx context.Context, result entity.DetectionResult) error
}

// SessionRecorder ведёт журнал полётных сессий
type SessionRecorder interface {
	Start(ctx context.Context, session *entity.FlightSession) error
	RecordPhase(ctx context.Context, sessionID string, change entity.PhaseChange) error
	Finish(ctx context.Context, session *entity.FlightSession) error
}

// MetricsRecorder собирает метрики обоих циклов
type MetricsRecorder interface {
	ObserveFrame(result entity.DetectionResult)
	ObservePosition(pos entity.TrackedPosition)
	ObservePhase(phase entity.FlightPhase)
	ObserveCommand(cmd entity.ControlCommand)
}
