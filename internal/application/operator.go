package app

import (
	"context"
	"fmt"

	"beacon-pilot/internal/domain/entity"
	"beacon-pilot/internal/domain/port"
)

// ShutdownRequester принимает запрос на завершение миссии и посадку.
type ShutdownRequester interface {
	RequestShutdown(reason string)
}

type OperatorService struct {
	repo     port.OperatorRepository
	shutdown ShutdownRequester
}

func NewOperatorService(repo port.OperatorRepository, shutdown ShutdownRequester) *OperatorService {
	return &OperatorService{repo: repo, shutdown: shutdown}
}

func (s *OperatorService) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *OperatorService) SetState(ctx context.Context, userID, chatID int64, state entity.OperatorState) (*entity.Operator, error) {
	op, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	op.SetState(state)
	if err := s.repo.Save(ctx, op); err != nil {
		return nil, err
	}

	return op, nil
}

// SetSubscribed включает или выключает уведомления о смене фаз.
func (s *OperatorService) SetSubscribed(ctx context.Context, userID, chatID int64, subscribed bool) (*entity.Operator, error) {
	op, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	op.Subscribed = subscribed
	if err := s.repo.Save(ctx, op); err != nil {
		return nil, err
	}

	return op, nil
}

// BeginLand просит подтвердить посадку.
func (s *OperatorService) BeginLand(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingLandConfirm)
}

// ConfirmLand запрашивает завершение миссии, если посадка была запрошена.
// Возвращает false, если подтверждать нечего.
func (s *OperatorService) ConfirmLand(ctx context.Context, userID, chatID int64) (bool, error) {
	op, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return false, err
	}
	if op.State != entity.StateAwaitingLandConfirm {
		return false, nil
	}

	if _, err := s.SetState(ctx, userID, chatID, entity.StateIdle); err != nil {
		return false, err
	}
	if s.shutdown != nil {
		s.shutdown.RequestShutdown(fmt.Sprintf("operator %d requested landing", userID))
	}
	return true, nil
}

func (s *OperatorService) Cancel(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateIdle)
}

// Recipients возвращает чаты подписанных операторов.
func (s *OperatorService) Recipients(ctx context.Context) ([]int64, error) {
	ops, err := s.repo.Subscribed(ctx)
	if err != nil {
		return nil, err
	}
	chats := make([]int64, 0, len(ops))
	for _, op := range ops {
		chats = append(chats, op.ChatID)
	}
	return chats, nil
}
