package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// publishTimeout ограничивает публикацию одного результата: кадры не ждут брокер.
const publishTimeout = 100 * time.Millisecond

// DetectionService — цикл детекции: кадр → маска → контуры → маяк → трекер.
type DetectionService struct {
	preprocessor port.Preprocessor
	extractor    port.ContourExtractor
	matcher      *BeaconMatcher
	tracker      *PositionTracker
	publisher    port.DetectionPublisher
	metrics      port.MetricsRecorder

	seq            uint64
	frames         atomic.Int64
	misses         atomic.Int64
	publishTimeout time.Duration
	now            func() time.Time
}

// NewDetectionService создаёт сервис детекции; publisher и metrics могут быть nil.
func NewDetectionService(preprocessor port.Preprocessor, extractor port.ContourExtractor, matcher *BeaconMatcher, tracker *PositionTracker, publisher port.DetectionPublisher, metrics port.MetricsRecorder) *DetectionService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DetectionService{
		preprocessor: preprocessor,
		extractor:    extractor,
		matcher:      matcher,
		tracker:      tracker,
		publisher:    publisher,
		metrics:      metrics,
		now:          time.Now,

		publishTimeout: publishTimeout,
	}
}

// Process анализирует очередной кадр потока. Отсутствие маяка — не ошибка: Found == false.
func (s *DetectionService) Process(frame port.Frame) (entity.DetectionResult, error) {
	s.seq++
	return s.analyze(frame, s.seq)
}

// Inspect анализирует отдельный снимок вне потока; трекер и статистика не меняются.
func (s *DetectionService) Inspect(frame port.Frame) (entity.DetectionResult, error) {
	return s.analyze(frame, 0)
}

func (s *DetectionService) analyze(frame port.Frame, seq uint64) (entity.DetectionResult, error) {
	start := s.now()

	mask, err := s.preprocessor.Mask(frame)
	if err != nil {
		return entity.DetectionResult{Seq: seq, At: start}, fmt.Errorf("preprocess: %w", err)
	}
	defer mask.Close()

	set, err := s.extractor.Extract(mask)
	if err != nil {
		return entity.DetectionResult{Seq: seq, At: start}, fmt.Errorf("extract contours: %w", err)
	}

	result := entity.DetectionResult{
		Seq:         seq,
		FrameWidth:  mask.Width(),
		FrameHeight: mask.Height(),
		Contours:    set.Len(),
		At:          start,
	}
	if beacon, ok := s.matcher.Find(set); ok {
		center := result.Center()
		result.Found = true
		result.Beacon = &beacon
		result.Offset = entity.Point2{X: beacon.Centroid.X - center.X, Y: beacon.Centroid.Y - center.Y}
	}
	result.Duration = float64(s.now().Sub(start).Microseconds()) / 1000
	return result, nil
}

// Run читает кадры до конца потока или отмены контекста.
// Конец потока возвращает nil.
func (s *DetectionService) Run(ctx context.Context, source port.FrameSource) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := source.Next(ctx)
		if errors.Is(err, entity.ErrSourceExhausted) {
			stats := s.Stats()
			logrus.WithFields(logrus.Fields{
				"frames":     stats.Frames,
				"misses":     stats.Misses,
				"ok_percent": stats.OKPercent(),
			}).Info("frame source exhausted")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("next frame: %w", err)
		}

		result, err := s.Process(frame)
		_ = frame.Close()
		if errors.Is(err, entity.ErrGoCVDisabled) {
			return err
		}
		if err != nil {
			// Битый кадр считается промахом.
			logrus.WithError(err).WithField("seq", result.Seq).Warn("frame skipped")
		}
		s.publish(ctx, result)
	}
}

// publish передаёт результат трекеру, метрикам и внешнему издателю.
func (s *DetectionService) publish(ctx context.Context, result entity.DetectionResult) {
	s.frames.Add(1)
	if !result.Found {
		s.misses.Add(1)
		logrus.WithField("seq", result.Seq).Debug("beacon not found")
	}

	pos := s.tracker.Update(result.Beacon, result.FrameWidth, result.FrameHeight)
	s.metrics.ObserveFrame(result)
	s.metrics.ObservePosition(pos)

	if s.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(pctx, result); err != nil {
			logrus.WithError(err).WithField("seq", result.Seq).Warn("publish detection failed")
		}
	}
}

// Stats возвращает накопленную статистику кадров.
func (s *DetectionService) Stats() entity.DetectionStats {
	return entity.DetectionStats{Frames: s.frames.Load(), Misses: s.misses.Load()}
}

type nopMetrics struct{}

func (nopMetrics) ObserveFrame(entity.DetectionResult)    {}
func (nopMetrics) ObservePosition(entity.TrackedPosition) {}
func (nopMetrics) ObservePhase(entity.FlightPhase)        {}
func (nopMetrics) ObserveCommand(entity.ControlCommand)   {}
