package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"beacon-pilot/internal/domain/entity"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	foundBefore := testutil.ToFloat64(framesCounter.WithLabelValues("found"))
	missBefore := testutil.ToFloat64(framesCounter.WithLabelValues("miss"))

	rec.ObserveFrame(entity.DetectionResult{Found: true, Duration: 4})
	rec.ObserveFrame(entity.DetectionResult{Duration: 3})
	rec.ObserveFrame(entity.DetectionResult{Duration: 2})

	require.Equal(t, foundBefore+1, testutil.ToFloat64(framesCounter.WithLabelValues("found")))
	require.Equal(t, missBefore+2, testutil.ToFloat64(framesCounter.WithLabelValues("miss")))

	rec.ObservePosition(entity.TrackedPosition{DX: 12, DY: -7, Misses: 10, Stale: true, Valid: true})
	require.Equal(t, 12.0, testutil.ToFloat64(beaconOffset.WithLabelValues("x")))
	require.Equal(t, -7.0, testutil.ToFloat64(beaconOffset.WithLabelValues("y")))
	require.Equal(t, 10.0, testutil.ToFloat64(consecutiveMisses))
	require.Equal(t, 1.0, testutil.ToFloat64(positionStale))

	rec.ObservePhase(entity.PhaseTracking)
	rec.ObservePhase(entity.PhaseHold)
	require.Equal(t, 1.0, testutil.ToFloat64(flightPhase.WithLabelValues("HOLD")))
	require.Equal(t, 0.0, testutil.ToFloat64(flightPhase.WithLabelValues("TRACKING")))
	require.Equal(t, 1.0, testutil.ToFloat64(airborne))

	rec.ObservePhase(entity.PhaseLanding)
	require.Equal(t, 0.0, testutil.ToFloat64(airborne))

	cmdsBefore := testutil.ToFloat64(commandsCounter)
	rec.ObserveCommand(entity.ControlCommand{VX: 0.5, VY: -0.25, VZ: 0.3})
	require.Equal(t, cmdsBefore+1, testutil.ToFloat64(commandsCounter))
	require.Equal(t, -0.25, testutil.ToFloat64(velocityCommand.WithLabelValues("vy")))
}

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()

	families, err := Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["beacon_pilot_controller_commands_total"])
	require.True(t, names["go_goroutines"])
}
