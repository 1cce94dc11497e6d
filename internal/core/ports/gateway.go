package ports

import (
	"context"

	"savings-ledger/internal/core/domain"
)

// PaymentProvider is one mobile-money network adapter.
//
// A returned error means the call failed in transit and may be retried.
// A result with Success=false is a definitive rejection.
type PaymentProvider interface {
	Name() domain.Provider
	RequestToPay(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	TransactionStatus(ctx context.Context, reference string) (*domain.ExternalStatus, error)
	Balance(ctx context.Context) (*domain.CollectorBalance, error)
}

// GatewayClient is the retrying, idempotent facade over the providers.
type GatewayClient interface {
	RequestDebit(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	Disburse(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error)
	CheckStatus(ctx context.Context, provider domain.Provider, reference string) (*domain.ExternalStatus, error)
	HandleCallback(ctx context.Context, provider domain.Provider, payload map[string]any) (*domain.CallbackAck, error)
	CollectorBalance(ctx context.Context, provider domain.Provider) (*domain.CollectorBalance, error)
}

// EventPublisher emits settlement outcomes to a message broker.
type EventPublisher interface {
	PublishSettlement(ctx context.Context, outcome *domain.SettlementOutcome) error
	Close() error
}
