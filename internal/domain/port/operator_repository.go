package port

import (
	"context"

	"beacon-pilot/internal/domain/entity"
)

// OperatorRepository интерфейс хранилища операторов
type OperatorRepository interface {
	// Get возвращает оператора по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error)

	// Save сохраняет состояние оператора
	Save(ctx context.Context, operator *entity.Operator) error

	// Subscribed возвращает операторов, получающих уведомления
	Subscribed(ctx context.Context) ([]*entity.Operator, error)
}
