package memory

import (
	"context"

	"savings-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	s *Store
}

func NewIdempotencyRepo(s *Store) *IdempotencyRepo {
	return &IdempotencyRepo{s: s}
}

func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	mt, err := r.s.tx(tx)
	if err != nil {
		return err
	}
	if _, ok := r.s.idempotency[log.Key]; ok {
		return domain.ErrIdempotencyKeyTaken
	}
	cp := *log
	r.s.idempotency[log.Key] = &cp
	mt.onRollback(func() { delete(r.s.idempotency, log.Key) })
	return nil
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	log, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	cp := *log
	return &cp, nil
}
