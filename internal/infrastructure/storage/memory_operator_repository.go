package storage

import (
	"context"
	"sort"
	"sync"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// MemoryOperatorRepository in-memory хранилище операторов
type MemoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[int64]*entity.Operator
}

// NewMemoryOperatorRepository создаёт новое in-memory хранилище
func NewMemoryOperatorRepository() *MemoryOperatorRepository {
	return &MemoryOperatorRepository{
		operators: make(map[int64]*entity.Operator),
	}
}

// Get возвращает копию оператора по ID, создаёт нового если не найден
func (r *MemoryOperatorRepository) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	r.mu.RLock()
	op, exists := r.operators[userID]
	r.mu.RUnlock()

	if exists {
		cp := *op
		return &cp, nil
	}

	// Создаём нового оператора
	newOp := entity.NewOperator(userID, chatID)

	r.mu.Lock()
	if existing, ok := r.operators[userID]; ok {
		newOp = existing
	} else {
		r.operators[userID] = newOp
	}
	cp := *newOp
	r.mu.Unlock()

	return &cp, nil
}

// Save сохраняет состояние оператора
func (r *MemoryOperatorRepository) Save(ctx context.Context, operator *entity.Operator) error {
	cp := *operator
	r.mu.Lock()
	r.operators[operator.ID] = &cp
	r.mu.Unlock()

	return nil
}

// Subscribed возвращает подписанных операторов, упорядоченных по ID
func (r *MemoryOperatorRepository) Subscribed(ctx context.Context) ([]*entity.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Operator
	for _, op := range r.operators {
		if op.Subscribed {
			cp := *op
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

// Проверка реализации интерфейса
var _ port.OperatorRepository = (*MemoryOperatorRepository)(nil)
