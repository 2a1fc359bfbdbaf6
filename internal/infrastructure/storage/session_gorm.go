package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// SessionModel строка таблицы flight_sessions
type SessionModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	Source     string
	Endpoint   string
	StartedAt  time.Time
	EndedAt    *time.Time
	Frames     int64
	Misses     int64
	OKPercent  float64
	FinalPhase string
	Error      string
}

func (SessionModel) TableName() string { return "flight_sessions" }

// PhaseEventModel строка таблицы phase_events
type PhaseEventModel struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:36"`
	FromPhase string
	ToPhase   string
	Reason    string
	At        time.Time
}

func (PhaseEventModel) TableName() string { return "phase_events" }

// SessionGorm журнал полётных сессий на gorm
type SessionGorm struct {
	db  *gorm.DB
	now func() time.Time
}

// OpenSQLite открывает файл журнала и применяет миграции
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open session log %q: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate создаёт таблицы журнала
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SessionModel{}, &PhaseEventModel{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func NewSessionGorm(db *gorm.DB) *SessionGorm {
	return &SessionGorm{db: db, now: time.Now}
}

// Close закрывает файл журнала
func (r *SessionGorm) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SessionGorm) Start(ctx context.Context, session *entity.FlightSession) error {
	m := SessionModel{
		ID:         session.ID,
		Source:     session.Source,
		Endpoint:   session.Endpoint,
		StartedAt:  session.StartedAt,
		FinalPhase: string(session.FinalPhase),
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *SessionGorm) RecordPhase(ctx context.Context, sessionID string, change entity.PhaseChange) error {
	ev := PhaseEventModel{
		SessionID: sessionID,
		FromPhase: string(change.From),
		ToPhase:   string(change.To),
		Reason:    change.Reason,
		At:        r.now(),
	}
	return r.db.WithContext(ctx).Create(&ev).Error
}

func (r *SessionGorm) Finish(ctx context.Context, session *entity.FlightSession) error {
	ended := session.EndedAt
	res := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"ended_at":    &ended,
			"frames":      session.Stats.Frames,
			"misses":      session.Stats.Misses,
			"ok_percent":  session.Stats.OKPercent(),
			"final_phase": string(session.FinalPhase),
			"error":       session.Error,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s not found", session.ID)
	}
	return nil
}

// Events возвращает переходы сессии в порядке записи
func (r *SessionGorm) Events(ctx context.Context, sessionID string) ([]PhaseEventModel, error) {
	var out []PhaseEventModel
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id").Find(&out).Error
	return out, err
}

// Проверка реализации интерфейса
var _ port.SessionRecorder = (*SessionGorm)(nil)
