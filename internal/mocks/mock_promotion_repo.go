package mocks

import (
	"context"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPromotionRepo struct {
	mock.Mock
	domain.PromotionRepository
}

func (m *MockPromotionRepo) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Promotion), args.Error(1)
}

func (m *MockPromotionRepo) IncrementUsage(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
