package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// notifyRetryIntervals are the waits between delivery attempts.
var notifyRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// EventSettlementCompleted is the event type carried by every notification.
const EventSettlementCompleted = "SETTLEMENT_COMPLETED"

// NotificationPayload is the JSON body POSTed to the downstream consumer.
type NotificationPayload struct {
	EventType string                   `json:"event_type"`
	Data      domain.SettlementOutcome `json:"data"`
	Timestamp int64                    `json:"timestamp"`
	Signature string                   `json:"signature"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPNotifier pushes settlement outcomes to a configured URL, signed with
// HMAC-SHA256, retrying non-2xx answers in the background.
type HTTPNotifier struct {
	url        string
	secret     string
	repo       ports.NotificationRepository // optional
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	clock      ports.Clock
	sleep      Sleeper
	intervals  []time.Duration
	log        zerolog.Logger
	wg         sync.WaitGroup
}

// NewHTTPNotifier creates a notifier. An empty url disables delivery.
func NewHTTPNotifier(
	url, secret string,
	repo ports.NotificationRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	clock ports.Clock,
	log zerolog.Logger,
) *HTTPNotifier {
	return &HTTPNotifier{
		url:        url,
		secret:     secret,
		repo:       repo,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		clock:      clock,
		sleep:      ContextSleeper,
		intervals:  notifyRetryIntervals,
		log:        log,
	}
}

// WithRetry overrides the retry schedule and sleeper.
func (n *HTTPNotifier) WithRetry(intervals []time.Duration, sleep Sleeper) *HTTPNotifier {
	n.intervals = intervals
	n.sleep = sleep
	return n
}

// NotifySettlement records a delivery and sends it asynchronously.
func (n *HTTPNotifier) NotifySettlement(ctx context.Context, outcome *domain.SettlementOutcome) error {
	if n.url == "" {
		return nil
	}

	now := n.clock.Now()
	dataBytes, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	payload := NotificationPayload{
		EventType: EventSettlementCompleted,
		Data:      *outcome,
		Timestamp: now.Unix(),
		Signature: n.sigSvc.Sign(n.secret, strconv.FormatInt(now.Unix(), 10)+"."+string(dataBytes)),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	delivery := &domain.NotificationDeliveryLog{
		ID:           uuid.New(),
		SettlementID: outcome.SettlementID,
		UserID:       outcome.UserID,
		URL:          n.url,
		Payload:      string(body),
		Status:       domain.NotificationStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if n.repo != nil {
		if err := n.repo.Create(ctx, delivery); err != nil {
			return fmt.Errorf("create delivery log: %w", err)
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetries(context.WithoutCancel(ctx), delivery, body, payload.Signature)
	}()
	return nil
}

// Wait blocks until all in-flight deliveries finish.
func (n *HTTPNotifier) Wait() {
	n.wg.Wait()
}

func (n *HTTPNotifier) deliverWithRetries(ctx context.Context, delivery *domain.NotificationDeliveryLog, body []byte, signature string) {
	logger := n.log.With().Str("settlement_id", delivery.SettlementID.String()).Logger()

	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			if err := n.sleep(ctx, n.intervals[attempt-1]); err != nil {
				return
			}
		}
		delivery.Attempt = attempt + 1

		status, err := n.post(ctx, body, signature)
		delivery.UpdatedAt = n.clock.Now()
		if status != 0 {
			code := status
			delivery.HTTPStatus = &code
		}

		if err == nil && status >= 200 && status < 300 {
			delivery.Status = domain.NotificationStatusDelivered
			delivery.NextRetryAt = nil
			delivery.LastError = nil
			n.save(ctx, delivery)
			logger.Info().Int("attempt", attempt+1).Int("status", status).Msg("notification delivered")
			return
		}

		msg := fmt.Sprintf("non-2xx response: %d", status)
		if err != nil {
			msg = err.Error()
		}
		delivery.LastError = &msg
		if attempt < len(n.intervals) {
			next := delivery.UpdatedAt.Add(n.intervals[attempt])
			delivery.NextRetryAt = &next
		} else {
			delivery.Status = domain.NotificationStatusFailed
			delivery.NextRetryAt = nil
		}
		n.save(ctx, delivery)
		logger.Warn().Int("attempt", attempt+1).Str("error", msg).Msg("notification delivery failed")
	}

	logger.Error().Msg("notification: all retry attempts exhausted")
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (n *HTTPNotifier) save(ctx context.Context, delivery *domain.NotificationDeliveryLog) {
	if n.repo == nil {
		return
	}
	cp := *delivery
	if err := n.repo.Update(ctx, &cp); err != nil {
		n.log.Warn().Err(err).Str("delivery_id", delivery.ID.String()).Msg("failed to update delivery log")
	}
}
