package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports/mocks"
	"savings-ledger/pkg/clock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, clock.NewFake(t0), newTestLogger())

	var saved *domain.AuditLog
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, log *domain.AuditLog) error {
			saved = log
			return nil
		},
	)

	userID := "user-1"
	svc.Log(context.Background(), &domain.AuditLog{
		UserID:       &userID,
		Action:       domain.AuditActionCredit,
		ResourceType: "virtual_transaction",
		ResourceID:   uuid.New().String(),
		IPAddress:    "127.0.0.1",
	})
	svc.Wait()

	if assert.NotNil(t, saved) {
		assert.Equal(t, domain.AuditActionCredit, saved.Action)
		assert.NotEqual(t, uuid.Nil, saved.ID)
		assert.Equal(t, t0, saved.CreatedAt)
	}
}

func TestAuditService_Log_RepoErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, clock.NewFake(t0), newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionSettleSweep, ResourceType: "settlement"})
	svc.Wait()
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, clock.NewFake(t0), newTestLogger())

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionCallback, ResourceType: "gateway"})
	svc.Wait()
}
