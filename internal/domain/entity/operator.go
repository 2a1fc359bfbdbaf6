package entity

// OperatorState состояние диалога оператора с ботом
type OperatorState string

const (
	StateIdle                OperatorState = "idle"                  // Обычный режим
	StateAwaitingLandConfirm OperatorState = "awaiting_land_confirm" // Ждём подтверждения посадки
)

// Operator представляет оператора, подписанного на уведомления
type Operator struct {
	ID         int64         // Telegram User ID
	ChatID     int64         // Telegram Chat ID
	State      OperatorState // Текущее состояние диалога
	Subscribed bool          // Получает уведомления о смене фаз
}

// NewOperator создаёт оператора с начальным состоянием
func NewOperator(userID, chatID int64) *Operator {
	return &Operator{
		ID:     userID,
		ChatID: chatID,
		State:  StateIdle,
	}
}

// SetState обновляет состояние диалога
func (o *Operator) SetState(state OperatorState) {
	o.State = state
}
