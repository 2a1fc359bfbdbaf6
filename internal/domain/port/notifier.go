package port

import "context"

// Notifier рассылает операторам сообщения о ходе полёта
type Notifier interface {
	// Notify отправляет текст всем подписанным операторам
	Notify(ctx context.Context, text string) error
}
