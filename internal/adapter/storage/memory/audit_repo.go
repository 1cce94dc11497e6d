package memory

import (
	"context"
	"fmt"

	"savings-ledger/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	s *Store
}

func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{s: s}
}

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// ListByResource returns matching entries, newest first.
func (r *AuditRepo) ListByResource(_ context.Context, resourceType, resourceID string, limit int) ([]domain.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AuditLog
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		l := r.s.audit[i]
		if l.ResourceType != resourceType || l.ResourceID != resourceID {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct {
	s *Store
}

func NewNotificationRepo(s *Store) *NotificationRepo {
	return &NotificationRepo{s: s}
}

func (r *NotificationRepo) Create(_ context.Context, log *domain.NotificationDeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *log
	r.s.notifications[log.ID] = &cp
	return nil
}

func (r *NotificationRepo) Update(_ context.Context, log *domain.NotificationDeliveryLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[log.ID]; !ok {
		return fmt.Errorf("notification log not found: %s", log.ID)
	}
	cp := *log
	r.s.notifications[log.ID] = &cp
	return nil
}
