package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	app "beacon-pilot/internal/application"
	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

const (
	msgStart = `👋 Привет! Я слежу за полётом по маяку.

🔔 Вы подписаны на уведомления о смене фаз полёта.

📋 Команды:
/status — состояние миссии
/land — посадить аппарат
/stop — отписаться от уведомлений
/help — справка`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ /start — подписаться на уведомления
2️⃣ /status — фаза полёта и смещение маяка
3️⃣ /land, затем /confirm — завершить миссию и посадить аппарат
📸 Пришлите фото — проверю, виден ли на нём маяк

📋 Команды:
/stop — отписаться
/cancel — отменить текущую операцию`

	msgStopped          = "🔕 Уведомления отключены. /start — включить снова."
	msgConfirmLand      = "⚠️ Посадить аппарат и завершить миссию? Отправьте /confirm или /cancel."
	msgLandRequested    = "🛬 Посадка запрошена."
	msgNothingToConfirm = "❓ Нечего подтверждать. Сначала отправьте /land."
	msgNoMission        = "💤 Миссия не выполняется."
	msgCancelled        = "❌ Операция отменена."
	msgUnknownCommand   = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing       = "⏳ Обрабатываю изображение..."
	msgProcessingError  = "⚠️ Не удалось обработать изображение. Попробуйте другое фото."
	msgNoBeacon         = "🔍 Маяк на фото не найден."
	msgInternalError    = "⚠️ Внутренняя ошибка, попробуйте ещё раз."
)

const (
	pollTimeout   = 60 // секунд, long polling getUpdates
	clientTimeout = 90 * time.Second
	notifyTimeout = 10 * time.Second
)

// MissionStatusProvider отдаёт состояние миссии для /status.
type MissionStatusProvider interface {
	Status() app.MissionStatus
}

// PhotoInspector ищет маяк на присланном изображении.
type PhotoInspector func(imageData []byte) (entity.DetectionResult, error)

// sender — часть BotAPI, которой пользуется бот.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot представляет Telegram-бота оператора
type Bot struct {
	api       *tgbotapi.BotAPI
	sender    sender
	operators *app.OperatorService
	mission   MissionStatusProvider
	inspect   PhotoInspector

	notifyTimeout time.Duration
}

// NewBot создаёт нового бота
func NewBot(token string, operators *app.OperatorService, mission MissionStatusProvider, inspect PhotoInspector) (*Bot, error) {
	client := &http.Client{Timeout: clientTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}

	logrus.WithField("account", api.Self.UserName).Info("telegram bot authorized")

	b := newBot(api, operators, mission, inspect)
	b.api = api
	return b, nil
}

func newBot(s sender, operators *app.OperatorService, mission MissionStatusProvider, inspect PhotoInspector) *Bot {
	return &Bot{
		sender:    s,
		operators: operators,
		mission:   mission,
		inspect:   inspect,

		notifyTimeout: notifyTimeout,
	}
}

// Run обрабатывает сообщения до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// Notify рассылает текст всем подписанным операторам
func (b *Bot) Notify(ctx context.Context, text string) error {
	chats, err := b.operators.Recipients(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, chatID := range chats {
		if err := b.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

// NotifyPhase сообщает операторам о смене фазы, не дольше notifyTimeout.
func (b *Bot) NotifyPhase(change entity.PhaseChange) {
	ctx, cancel := context.WithTimeout(context.Background(), b.notifyTimeout)
	defer cancel()
	if err := b.Notify(ctx, formatPhaseChange(change)); err != nil {
		logrus.WithError(err).Warn("phase notification failed")
	}
}

// send ждёт ответа Telegram не дольше ctx; запрос дочитает http-клиент с таймаутом.
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := b.sender.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgUnknownCommand)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	var err error
	switch msg.Command() {
	case "start":
		if _, err = b.operators.SetSubscribed(ctx, userID, chatID, true); err == nil {
			b.sendMessage(chatID, msgStart)
		}

	case "stop":
		if _, err = b.operators.SetSubscribed(ctx, userID, chatID, false); err == nil {
			b.sendMessage(chatID, msgStopped)
		}

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "status":
		b.sendMessage(chatID, formatStatus(b.mission.Status()))

	case "land":
		if !b.mission.Status().Running {
			b.sendMessage(chatID, msgNoMission)
			return
		}
		if _, err = b.operators.BeginLand(ctx, userID, chatID); err == nil {
			b.sendMessage(chatID, msgConfirmLand)
		}

	case "confirm":
		var ok bool
		if ok, err = b.operators.ConfirmLand(ctx, userID, chatID); err == nil {
			if ok {
				b.sendMessage(chatID, msgLandRequested)
			} else {
				b.sendMessage(chatID, msgNothingToConfirm)
			}
		}

	case "cancel":
		if _, err = b.operators.Cancel(ctx, userID, chatID); err == nil {
			b.sendMessage(chatID, msgCancelled)
		}

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}

	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user": userID, "command": msg.Command()}).Error("command failed")
		b.sendMessage(chatID, msgInternalError)
	}
}

// handlePhoto проверяет, виден ли маяк на присланном фото
func (b *Bot) handlePhoto(msg *tgbotapi.Message) {
	b.sendMessage(msg.Chat.ID, msgProcessing)

	// Берём файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(photo.FileID)
	if err != nil {
		logrus.WithError(err).Warn("photo download failed")
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	result, err := b.inspect(imageData)
	if err != nil {
		logrus.WithError(err).WithField("bytes", len(imageData)).Warn("photo inspection failed")
		b.sendMessage(msg.Chat.ID, msgProcessingError)
		return
	}

	b.sendMessage(msg.Chat.ID, formatInspection(result))
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	if b.api == nil {
		return nil, errors.New("telegram api is not initialised")
	}
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	fileURL := file.Link(b.api.Token)

	resp, err := http.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		logrus.WithError(err).WithField("chat", chatID).Warn("send message failed")
	}
}

func formatStatus(st app.MissionStatus) string {
	var sb strings.Builder
	if st.Running {
		sb.WriteString("📡 Миссия выполняется")
	} else {
		sb.WriteString("💤 Миссия не выполняется")
	}
	if st.Source != "" {
		fmt.Fprintf(&sb, " (%s)", st.Source)
	}
	sb.WriteString("\n")

	if st.Flight {
		fmt.Fprintf(&sb, "✈️ Фаза: %s\n", st.Phase)
	} else {
		sb.WriteString("✈️ Аппарат не подключён, только детекция\n")
	}

	pos := st.Position
	switch {
	case !pos.Valid:
		sb.WriteString("🎯 Маяк ещё не обнаружен\n")
	case pos.Stale:
		fmt.Fprintf(&sb, "🎯 Маяк потерян %d кадров назад, последнее смещение dx=%.0f dy=%.0f px\n", pos.Misses, pos.DX, pos.DY)
	default:
		fmt.Fprintf(&sb, "🎯 Смещение: dx=%.0f dy=%.0f px\n", pos.DX, pos.DY)
	}

	fmt.Fprintf(&sb, "📊 Кадров: %d, без маяка: %d (%.1f%% OK)", st.Stats.Frames, st.Stats.Misses, st.OKPercent)
	return sb.String()
}

func formatInspection(r entity.DetectionResult) string {
	if !r.Found || r.Beacon == nil {
		return fmt.Sprintf("%s\nКонтуров в кадре: %d.", msgNoBeacon, r.Contours)
	}
	return fmt.Sprintf("✅ Маяк найден.\n🎯 Центр: (%.0f, %.0f), смещение dx=%.0f dy=%.0f px\n📐 Отношение площадей: %.1f",
		r.Beacon.Centroid.X, r.Beacon.Centroid.Y, r.Offset.X, r.Offset.Y, r.Beacon.Ratio)
}

func formatPhaseChange(c entity.PhaseChange) string {
	icon := "✈️"
	switch c.To {
	case entity.PhaseHold:
		icon = "⏸"
	case entity.PhaseLanding:
		icon = "🛬"
	case entity.PhaseFailed:
		icon = "🚨"
	}
	return fmt.Sprintf("%s %s → %s: %s", icon, c.From, c.To, c.Reason)
}

var _ port.Notifier = (*Bot)(nil)
