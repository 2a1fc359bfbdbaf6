package entity

import "time"

// FlightSession — один запуск миссии от открытия источника до посадки
type FlightSession struct {
	ID         string
	Source     string
	Endpoint   string
	StartedAt  time.Time
	EndedAt    time.Time
	Stats      DetectionStats
	FinalPhase FlightPhase
	Error      string
}
