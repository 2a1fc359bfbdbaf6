package container

import (
	"beacon-pilot/config"
	app "beacon-pilot/internal/application"
	"beacon-pilot/internal/domain/port"
)

// Deps — внешние адаптеры. Publisher, Dialer, Recorder и Metrics могут быть nil.
type Deps struct {
	Preprocessor port.Preprocessor
	Extractor    port.ContourExtractor
	Operators    port.OperatorRepository
	Publisher    port.DetectionPublisher
	Dialer       port.LinkDialer
	Recorder     port.SessionRecorder
	Metrics      port.MetricsRecorder
}

type Container struct {
	Tracker          *app.PositionTracker
	DetectionService *app.DetectionService
	Controller       *app.FlightController
	Mission          *app.Mission
	OperatorService  *app.OperatorService
}

func New(cfg *config.Config, deps Deps) *Container {
	tracker := app.NewPositionTracker(cfg.Tracker)
	matcher := app.NewBeaconMatcher(cfg.Detector)
	detection := app.NewDetectionService(deps.Preprocessor, deps.Extractor, matcher, tracker, deps.Publisher, deps.Metrics)
	controller := app.NewFlightController(cfg.Controller, tracker, deps.Metrics)
	mission := app.NewMission(cfg, detection, controller, tracker, deps.Dialer, deps.Recorder)
	operators := app.NewOperatorService(deps.Operators, mission)

	return &Container{
		Tracker:          tracker,
		DetectionService: detection,
		Controller:       controller,
		Mission:          mission,
		OperatorService:  operators,
	}
}
