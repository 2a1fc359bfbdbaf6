// Package metrics экспортирует состояние циклов детекции и управления в Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

const namespace = "beacon_pilot"

// Registry — реестр, который отдаёт /metrics.
var Registry = prometheus.NewRegistry()

var (
	framesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "frames_total",
			Help:      "Count of processed frames by detection result.",
		},
		[]string{"result"},
	)
	frameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "frame_duration_seconds",
			Help:      "Time spent analysing a single frame.",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)
	beaconOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "offset_pixels",
			Help:      "Last known beacon offset from the frame center.",
		},
		[]string{"axis"},
	)
	consecutiveMisses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "consecutive_misses",
			Help:      "Frames in a row without a beacon.",
		},
	)
	positionStale = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "stale",
			Help:      "1 when the tracked offset is stale.",
		},
	)
	flightPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "phase",
			Help:      "Current flight phase (1 for the active phase).",
		},
		[]string{"phase"},
	)
	airborne = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "airborne",
			Help:      "1 while the vehicle may be in the air.",
		},
	)
	velocityCommand = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "velocity_command",
			Help:      "Last velocity command sent to the vehicle, m/s.",
		},
		[]string{"axis"},
	)
	commandsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Count of velocity commands sent to the vehicle.",
		},
	)
)

var phases = []entity.FlightPhase{
	entity.PhaseInit,
	entity.PhaseArming,
	entity.PhaseTakeoff,
	entity.PhaseTracking,
	entity.PhaseHold,
	entity.PhaseLanding,
	entity.PhaseFailed,
}

var registerMetrics sync.Once

// Register регистрирует все метрики в Registry.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		Registry.MustRegister(framesCounter)
		Registry.MustRegister(frameDuration)
		Registry.MustRegister(beaconOffset)
		Registry.MustRegister(consecutiveMisses)
		Registry.MustRegister(positionStale)
		Registry.MustRegister(flightPhase)
		Registry.MustRegister(airborne)
		Registry.MustRegister(velocityCommand)
		Registry.MustRegister(commandsCounter)
	})
}

// RecordFrame учитывает обработанный кадр.
func RecordFrame(found bool, durationMs float64) {
	result := "miss"
	if found {
		result = "found"
	}
	framesCounter.WithLabelValues(result).Inc()
	frameDuration.Observe(durationMs / 1000)
}

// RecordPosition выставляет смещение и признаки устаревания.
func RecordPosition(pos entity.TrackedPosition) {
	beaconOffset.WithLabelValues("x").Set(pos.DX)
	beaconOffset.WithLabelValues("y").Set(pos.DY)
	consecutiveMisses.Set(float64(pos.Misses))
	if pos.Stale {
		positionStale.Set(1)
	} else {
		positionStale.Set(0)
	}
}

// RecordPhase отмечает активную фазу.
func RecordPhase(phase entity.FlightPhase) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		flightPhase.WithLabelValues(string(p)).Set(v)
	}
	if phase.Airborne() {
		airborne.Set(1)
	} else {
		airborne.Set(0)
	}
}

// RecordCommand сохраняет последнюю команду скорости.
func RecordCommand(cmd entity.ControlCommand) {
	velocityCommand.WithLabelValues("vx").Set(cmd.VX)
	velocityCommand.WithLabelValues("vy").Set(cmd.VY)
	velocityCommand.WithLabelValues("vz").Set(cmd.VZ)
	commandsCounter.Inc()
}

// Recorder адаптирует функции пакета к порту MetricsRecorder.
type Recorder struct{}

func NewRecorder() *Recorder {
	Register()
	return &Recorder{}
}

func (Recorder) ObserveFrame(result entity.DetectionResult)  { RecordFrame(result.Found, result.Duration) }
func (Recorder) ObservePosition(pos entity.TrackedPosition)  { RecordPosition(pos) }
func (Recorder) ObservePhase(phase entity.FlightPhase)       { RecordPhase(phase) }
func (Recorder) ObserveCommand(cmd entity.ControlCommand)    { RecordCommand(cmd) }

var _ port.MetricsRecorder = (*Recorder)(nil)
