package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// AuditService writes audit entries to the log and, when a repository is
// configured, persists them in the background.
type AuditService struct {
	repo  ports.AuditRepository
	clock ports.Clock
	log   zerolog.Logger
	wg    sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, clock ports.Clock, log zerolog.Logger) *AuditService {
	return &AuditService{repo: repo, clock: clock, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
func (s *AuditService) Log(_ context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ev := s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID)
		if entry.UserID != nil {
			ev = ev.Str("user_id", *entry.UserID)
		}
		if entry.IPAddress != "" {
			ev = ev.Str("ip", entry.IPAddress)
		}
		ev.Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// Wait blocks until every queued entry has been persisted. Used on shutdown.
func (s *AuditService) Wait() {
	s.wg.Wait()
}
