package app

import (
	"sync/atomic"
	"time"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
)

// PositionTracker хранит последний снимок положения маяка.
// Пишет только цикл детекции, читать можно из любого числа горутин:
// каждый снимок публикуется целиком атомарной заменой указателя.
type PositionTracker struct {
	staleAfter int
	current    atomic.Pointer[entity.TrackedPosition]
	now        func() time.Time
}

// NewPositionTracker создаёт трекер с пустым (невалидным) снимком.
func NewPositionTracker(cfg config.TrackerConfig) *PositionTracker {
	t := &PositionTracker{staleAfter: cfg.StaleAfter, now: time.Now}
	t.current.Store(&entity.TrackedPosition{})
	return t
}

// Update публикует результат очередного кадра.
// При промахе смещение сохраняется, растёт счётчик промахов, а после
// staleAfter промахов подряд снимок помечается устаревшим.
func (t *PositionTracker) Update(beacon *entity.Beacon, frameWidth, frameHeight int) entity.TrackedPosition {
	prev := t.current.Load()
	next := *prev
	next.Seq = prev.Seq + 1
	next.UpdatedAt = t.now()

	if beacon != nil {
		center := entity.Point2{X: float64(frameWidth) / 2, Y: float64(frameHeight) / 2}
		next.DX = beacon.Centroid.X - center.X
		next.DY = beacon.Centroid.Y - center.Y
		next.Centroid = beacon.Centroid
		next.FrameWidth = frameWidth
		next.FrameHeight = frameHeight
		next.Valid = true
		next.Stale = false
		next.Misses = 0
		next.DetectedAt = next.UpdatedAt
	} else {
		next.Misses = prev.Misses + 1
		next.Stale = next.Misses >= t.staleAfter
	}

	t.current.Store(&next)
	return next
}

// Read возвращает последний опубликованный снимок.
func (t *PositionTracker) Read() entity.TrackedPosition {
	return *t.current.Load()
}
