package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	app "beacon-pilot/internal/application"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/infrastructure/storage"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, sentMessage{chatID: m.ChatID, text: m.Text})
	}
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type fakeMission struct {
	status  app.MissionStatus
	reasons []string
}

func (m *fakeMission) Status() app.MissionStatus { return m.status }

func (m *fakeMission) RequestShutdown(reason string) {
	m.reasons = append(m.reasons, reason)
}

func command(userID, chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(text)},
		},
	}
}

// stuckSender не отвечает, пока не закрыт release.
type stuckSender struct {
	release chan struct{}
}

func (s *stuckSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	<-s.release
	return tgbotapi.Message{}, nil
}

func newTestBot(mission *fakeMission) (*Bot, *fakeSender) {
	s := &fakeSender{}
	operators := app.NewOperatorService(storage.NewMemoryOperatorRepository(), mission)
	return newBot(s, operators, mission, nil), s
}

func TestBot_StartSubscribesAndNotify(t *testing.T) {
	mission := &fakeMission{}
	b, s := newTestBot(mission)
	ctx := context.Background()

	b.handleMessage(ctx, command(1, 10, "/start"))
	require.Equal(t, msgStart, s.last().text)

	b.handleMessage(ctx, command(2, 20, "/help"))

	b.NotifyPhase(entity.PhaseChange{From: entity.PhaseTracking, To: entity.PhaseHold, Reason: "beacon lost for 10 frames"})
	last := s.last()
	require.Equal(t, int64(10), last.chatID)
	require.Equal(t, "⏸ TRACKING → HOLD: beacon lost for 10 frames", last.text)

	b.handleMessage(ctx, command(1, 10, "/stop"))
	require.Equal(t, msgStopped, s.last().text)

	before := len(s.sent)
	require.NoError(t, b.Notify(ctx, "test"))
	require.Len(t, s.sent, before)
}

func TestBot_LandRequiresConfirmation(t *testing.T) {
	mission := &fakeMission{}
	b, s := newTestBot(mission)
	ctx := context.Background()

	b.handleMessage(ctx, command(1, 10, "/land"))
	require.Equal(t, msgNoMission, s.last().text)

	mission.status.Running = true
	b.handleMessage(ctx, command(1, 10, "/confirm"))
	require.Equal(t, msgNothingToConfirm, s.last().text)

	b.handleMessage(ctx, command(1, 10, "/land"))
	require.Equal(t, msgConfirmLand, s.last().text)
	require.Empty(t, mission.reasons)

	b.handleMessage(ctx, command(1, 10, "/confirm"))
	require.Equal(t, msgLandRequested, s.last().text)
	require.Len(t, mission.reasons, 1)
}

func TestBot_CancelLand(t *testing.T) {
	mission := &fakeMission{status: app.MissionStatus{Running: true}}
	b, s := newTestBot(mission)
	ctx := context.Background()

	b.handleMessage(ctx, command(1, 10, "/land"))
	b.handleMessage(ctx, command(1, 10, "/cancel"))
	require.Equal(t, msgCancelled, s.last().text)

	b.handleMessage(ctx, command(1, 10, "/confirm"))
	require.Equal(t, msgNothingToConfirm, s.last().text)
	require.Empty(t, mission.reasons)
}

func TestBot_UnknownInput(t *testing.T) {
	b, s := newTestBot(&fakeMission{})
	ctx := context.Background()

	b.handleMessage(ctx, command(1, 10, "/takeoff"))
	require.Equal(t, msgUnknownCommand, s.last().text)

	b.handleMessage(ctx, &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 10}, Text: "привет"})
	require.Equal(t, msgUnknownCommand, s.last().text)
}

func TestFormatStatus(t *testing.T) {
	st := app.MissionStatus{
		Running:   true,
		Flight:    true,
		Source:    "camera:0",
		Phase:     entity.PhaseTracking,
		Position:  entity.TrackedPosition{DX: 12, DY: -4, Valid: true},
		Stats:     entity.DetectionStats{Frames: 10, Misses: 1},
		OKPercent: 90,
	}
	require.Equal(t, "📡 Миссия выполняется (camera:0)\n✈️ Фаза: TRACKING\n🎯 Смещение: dx=12 dy=-4 px\n📊 Кадров: 10, без маяка: 1 (90.0% OK)", formatStatus(st))

	st.Flight = false
	st.Position.Stale = true
	st.Position.Misses = 12
	text := formatStatus(st)
	require.Contains(t, text, "только детекция")
	require.Contains(t, text, "потерян 12 кадров назад")
}

func TestFormatInspection(t *testing.T) {
	require.Contains(t, formatInspection(entity.DetectionResult{Contours: 4}), msgNoBeacon)

	text := formatInspection(entity.DetectionResult{
		Found:  true,
		Beacon: &entity.Beacon{BeaconCandidate: entity.BeaconCandidate{Ratio: 15}, Centroid: entity.Point2{X: 130, Y: 130}},
		Offset: entity.Point2{X: -70, Y: -20},
	})
	require.Contains(t, text, "(130, 130)")
	require.Contains(t, text, "dx=-70 dy=-20")
	require.Contains(t, text, "15.0")
}

func TestBot_NotifyPhaseIsBounded(t *testing.T) {
	mission := &fakeMission{}
	operators := app.NewOperatorService(storage.NewMemoryOperatorRepository(), mission)
	_, err := operators.SetSubscribed(context.Background(), 1, 10, true)
	require.NoError(t, err)

	s := &stuckSender{release: make(chan struct{})}
	defer close(s.release)
	b := newBot(s, operators, mission, nil)
	b.notifyTimeout = 20 * time.Millisecond

	done := make(chan struct{})
	go func() {
		b.NotifyPhase(entity.PhaseChange{From: entity.PhaseTracking, To: entity.PhaseLanding, Reason: "shutdown requested"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("phase notification blocked on a stuck send")
	}
}
