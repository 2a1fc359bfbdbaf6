package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
)

func beaconAt(x, y float64) *entity.Beacon {
	return &entity.Beacon{Centroid: entity.Point2{X: x, Y: y}}
}

func TestPositionTracker_InitialSnapshot(t *testing.T) {
	tr := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})

	pos := tr.Read()
	require.False(t, pos.Valid)
	require.False(t, pos.Usable())
	require.Zero(t, pos.Seq)
}

func TestPositionTracker_Offset(t *testing.T) {
	tr := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})

	pos := tr.Update(beaconAt(200, 150), 400, 300)
	require.True(t, pos.Usable())
	require.Zero(t, pos.DX)
	require.Zero(t, pos.DY)

	pos = tr.Update(beaconAt(300, 75), 400, 300)
	require.Equal(t, 100.0, pos.DX)
	require.Equal(t, -75.0, pos.DY)
	require.Equal(t, uint64(2), pos.Seq)

	nx, ny := pos.Normalized()
	require.Equal(t, 0.5, nx)
	require.Equal(t, -0.5, ny)
	require.Equal(t, pos, tr.Read())
}

func TestPositionTracker_StaleAfterMisses(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	tr := NewPositionTracker(config.TrackerConfig{StaleAfter: 3})
	tr.now = func() time.Time { return now }

	tr.Update(beaconAt(250, 100), 400, 300)
	detectedAt := now

	for i := 1; i <= 2; i++ {
		now = now.Add(100 * time.Millisecond)
		pos := tr.Update(nil, 0, 0)
		require.Equal(t, i, pos.Misses)
		require.False(t, pos.Stale)
		require.True(t, pos.Usable())
	}

	now = now.Add(100 * time.Millisecond)
	pos := tr.Update(nil, 0, 0)
	require.True(t, pos.Stale)
	require.True(t, pos.Valid)
	require.False(t, pos.Usable())
	require.Equal(t, 50.0, pos.DX)
	require.Equal(t, -50.0, pos.DY)
	require.Equal(t, 400, pos.FrameWidth)
	require.Equal(t, detectedAt, pos.DetectedAt)
	require.Equal(t, now, pos.UpdatedAt)

	pos = tr.Update(beaconAt(200, 150), 400, 300)
	require.False(t, pos.Stale)
	require.Zero(t, pos.Misses)
	require.True(t, pos.Usable())
}

func TestPositionTracker_MissesBeforeFirstDetection(t *testing.T) {
	tr := NewPositionTracker(config.TrackerConfig{StaleAfter: 1})

	pos := tr.Update(nil, 400, 300)
	require.False(t, pos.Valid)
	require.True(t, pos.Stale)
	require.Zero(t, pos.FrameWidth)
}

func TestPositionTracker_ConcurrentReaders(t *testing.T) {
	tr := NewPositionTracker(config.TrackerConfig{StaleAfter: 5})

	const updates = 500
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for i := 0; i < updates; i++ {
				pos := tr.Read()
				assert.GreaterOrEqual(t, pos.Seq, last)
				last = pos.Seq
				if pos.Valid {
					// Снимок всегда согласован: DX и DY из одного кадра.
					assert.Equal(t, pos.DX, -pos.DY)
				}
			}
		}()
	}

	for i := 0; i < updates; i++ {
		k := float64(i % 100)
		if i%7 == 0 {
			tr.Update(nil, 0, 0)
			continue
		}
		tr.Update(beaconAt(200+k, 150-k), 400, 300)
	}
	wg.Wait()

	require.Equal(t, uint64(updates), tr.Read().Seq)
}
