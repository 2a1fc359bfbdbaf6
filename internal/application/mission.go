package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"beacon-pilot/config"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// MissionStatus — снимок состояния миссии для операторских интерфейсов.
type MissionStatus struct {
	SessionID string                 `json:"session_id"`
	Source    string                 `json:"source"`
	Running   bool                   `json:"running"`
	Flight    bool                   `json:"flight"`
	Phase     entity.FlightPhase     `json:"phase"`
	Position  entity.TrackedPosition `json:"position"`
	Stats     entity.DetectionStats  `json:"stats"`
	OKPercent float64                `json:"ok_percent"`
	StartedAt time.Time              `json:"started_at"`
}

// Mission владеет источником кадров и соединением с аппаратом на время полёта.
type Mission struct {
	link        config.LinkConfig
	landTimeout time.Duration

	detection  *DetectionService
	controller *FlightController
	tracker    *PositionTracker
	dialer     port.LinkDialer
	recorder   port.SessionRecorder

	mu        sync.RWMutex
	cancel    context.CancelFunc
	running   bool
	flight    bool
	session   entity.FlightSession
	stopCause string

	now func() time.Time
}

// NewMission связывает циклы детекции и управления; dialer и recorder могут быть nil.
func NewMission(cfg *config.Config, detection *DetectionService, controller *FlightController, tracker *PositionTracker, dialer port.LinkDialer, recorder port.SessionRecorder) *Mission {
	m := &Mission{
		link:        cfg.Link,
		landTimeout: cfg.Controller.LandTimeout,
		detection:   detection,
		controller:  controller,
		tracker:     tracker,
		dialer:      dialer,
		recorder:    recorder,
		now:         time.Now,
	}
	controller.OnPhase(m.recordPhase)
	return m
}

// Run выполняет миссию до конца потока кадров, ошибки или RequestShutdown.
// На любом пути выхода источник закрывается, а аппарат получает команду посадки.
func (m *Mission) Run(ctx context.Context, source port.FrameSource, sourceName string) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := m.begin(ctx, cancel, sourceName)
	if err != nil {
		_ = source.Close()
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mission panic: %v", r)
		}
		if terr := m.teardown(source); terr != nil {
			err = errors.Join(err, terr)
		}
		m.finish(session, err)
	}()

	link := m.connect(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("detection", func() error {
		err := m.detection.Run(gctx, source)
		if err == nil && gctx.Err() == nil {
			m.RequestShutdown("frame source exhausted")
		}
		return err
	}))
	if link != nil {
		g.Go(guard("control", func() error {
			return m.controller.Run(gctx, link)
		}))
	}

	return g.Wait()
}

// RequestShutdown останавливает оба цикла; посадку выполнит Run.
func (m *Mission) RequestShutdown(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		logrus.WithField("reason", reason).Debug("shutdown requested while no mission is running")
		return
	}
	if m.stopCause == "" {
		m.stopCause = reason
		logrus.WithField("reason", reason).Info("mission shutdown requested")
	}
	m.cancel()
}

// Status возвращает текущее состояние миссии.
func (m *Mission) Status() MissionStatus {
	m.mu.RLock()
	st := MissionStatus{
		SessionID: m.session.ID,
		Source:    m.session.Source,
		Running:   m.running,
		Flight:    m.flight,
		StartedAt: m.session.StartedAt,
	}
	m.mu.RUnlock()

	st.Phase = m.controller.Phase()
	st.Position = m.tracker.Read()
	st.Stats = m.detection.Stats()
	st.OKPercent = st.Stats.OKPercent()
	return st
}

func (m *Mission) begin(ctx context.Context, cancel context.CancelFunc, sourceName string) (entity.FlightSession, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return entity.FlightSession{}, errors.New("mission is already running")
	}
	m.running = true
	m.cancel = cancel
	m.stopCause = ""
	m.flight = false
	m.session = entity.FlightSession{
		ID:         uuid.NewString(),
		Source:     sourceName,
		Endpoint:   m.link.Endpoint,
		StartedAt:  m.now(),
		FinalPhase: entity.PhaseInit,
	}
	session := m.session
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session": session.ID, "source": sourceName}).Info("mission started")
	if m.recorder != nil {
		if err := m.recorder.Start(ctx, &session); err != nil {
			logrus.WithError(err).Warn("failed to record session start")
		}
	}
	return session, nil
}

// connect возвращает nil, если аппарат недоступен: тогда работает только детекция.
func (m *Mission) connect(ctx context.Context) port.FlightLink {
	log := logrus.WithFields(logrus.Fields{"endpoint": m.link.Endpoint, "baud": m.link.Baud})
	if m.dialer == nil || m.link.Endpoint == "" {
		log.Info("no flight link configured, running detection only")
		return nil
	}

	link, err := m.dialer.Connect(ctx, m.link.Endpoint, m.link.Baud)
	if err != nil {
		log.WithError(err).Warn("flight link unavailable, running detection only")
		return nil
	}

	m.mu.Lock()
	m.flight = true
	m.mu.Unlock()
	log.Info("flight link connected")
	return link
}

func (m *Mission) teardown(source port.FrameSource) error {
	var errs []error
	if err := source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close frame source: %w", err))
	}

	// Контекст миссии уже может быть отменён: посадке нужен свой.
	ctx, cancel := context.WithTimeout(context.Background(), m.landTimeout)
	defer cancel()
	if err := m.controller.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Mission) finish(session entity.FlightSession, runErr error) {
	session.EndedAt = m.now()
	session.Stats = m.detection.Stats()
	session.FinalPhase = m.controller.Phase()
	if runErr != nil {
		session.Error = runErr.Error()
	}

	m.mu.Lock()
	m.running = false
	m.cancel = nil
	m.session = session
	m.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"session":    session.ID,
		"phase":      session.FinalPhase,
		"frames":     session.Stats.Frames,
		"misses":     session.Stats.Misses,
		"ok_percent": session.Stats.OKPercent(),
	})
	if runErr != nil {
		log.WithError(runErr).Error("mission finished with error")
	} else {
		log.Info("mission finished")
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.landTimeout)
	defer cancel()
	if err := m.controller.Flush(ctx); err != nil {
		logrus.WithError(err).Warn("phase observers did not catch up")
	}
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Finish(ctx, &session); err != nil {
		logrus.WithError(err).Warn("failed to record session finish")
	}
}

// guard превращает панику цикла в ошибку группы: Run всё равно выполнит посадку.
func guard(loop string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("loop", loop).Errorf("panic: %v\n%s", r, debug.Stack())
				err = fmt.Errorf("%s loop panic: %v", loop, r)
			}
		}()
		return fn()
	}
}

func (m *Mission) recordPhase(change entity.PhaseChange) {
	if m.recorder == nil {
		return
	}
	m.mu.RLock()
	id := m.session.ID
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.landTimeout)
	defer cancel()
	if err := m.recorder.RecordPhase(ctx, id, change); err != nil {
		logrus.WithError(err).WithField("session", id).Warn("failed to record phase change")
	}
}
