package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// MTNConfig holds MoMo Open API credentials for one environment.
type MTNConfig struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	Currency          string
	PayerPrefix       string
	Timeout           time.Duration
}

// product selects the MoMo API family a call belongs to.
type product struct {
	name     string // collection, disbursement
	submit   string // POST path
	status   string // GET path prefix, reference appended
	partyKey string // payer, payee
}

var (
	collection = product{
		name:     "collection",
		submit:   "/collection/v1_0/requesttopay",
		status:   "/collection/v1_0/requesttopay/",
		partyKey: "payer",
	}
	disbursement = product{
		name:     "disbursement",
		submit:   "/disbursement/v1_0/transfer",
		status:   "/disbursement/v1_0/transfer/",
		partyKey: "payee",
	}
)

// ErrStillPending is returned when MoMo has accepted a request but not yet
// reached a final state. Callers treat it as transient.
var ErrStillPending = errors.New("mtn: transaction still pending")

type mtnToken struct {
	value     string
	expiresAt time.Time
}

// MTNProvider talks to the MTN MoMo Open API over HTTP.
type MTNProvider struct {
	client *resty.Client
	cfg    MTNConfig
	clock  ports.Clock

	mu     sync.Mutex
	tokens map[string]mtnToken
}

func NewMTNProvider(cfg MTNConfig, clock ports.Clock) *MTNProvider {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Ocp-Apim-Subscription-Key", cfg.SubscriptionKey)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.Currency == "" {
		cfg.Currency = "XAF"
	}
	return &MTNProvider{
		client: client,
		cfg:    cfg,
		clock:  clock,
		tokens: make(map[string]mtnToken),
	}
}

func (p *MTNProvider) Name() domain.Provider { return domain.ProviderMTN }

func (p *MTNProvider) RequestToPay(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return p.submit(ctx, collection, domain.OperationDebit, req)
}

func (p *MTNProvider) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	return p.submit(ctx, disbursement, domain.OperationDisbursement, req)
}

func (p *MTNProvider) submit(ctx context.Context, prod product, op domain.TransferOperation, req domain.TransferRequest) (*domain.TransferResult, error) {
	token, err := p.token(ctx, prod)
	if err != nil {
		return nil, err
	}

	refID := referenceID(req.Reference)
	body := map[string]any{
		"amount":     strconv.FormatInt(req.Amount, 10),
		"currency":   p.cfg.Currency,
		"externalId": req.Reference,
		prod.partyKey: map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     p.msisdn(req),
		},
		"payerMessage": "Savings settlement",
		"payeeNote":    req.Reference,
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Reference-Id", refID).
		SetHeader("X-Target-Environment", p.cfg.TargetEnvironment).
		SetBody(body).
		Post(prod.submit)
	if err != nil {
		return nil, fmt.Errorf("mtn %s submit: %w", prod.name, err)
	}

	result := &domain.TransferResult{
		Operation: op,
		Provider:  domain.ProviderMTN,
		Reference: req.Reference,
		Amount:    req.Amount,
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusAccepted, code == http.StatusConflict:
		// 409 means this reference was already submitted; its status is authoritative.
	case code >= http.StatusInternalServerError:
		return nil, fmt.Errorf("mtn %s submit: status %d", prod.name, code)
	default:
		result.Error = fmt.Sprintf("mtn rejected request: status %d: %s", code, errorMessage(resp.Body()))
		result.CompletedAt = p.clock.Now()
		return result, nil
	}

	status, err := p.status(ctx, prod, refID)
	if err != nil {
		return nil, err
	}
	result.CompletedAt = p.clock.Now()

	switch status.State {
	case domain.ExternalStateSuccessful:
		result.Success = true
		result.ExternalTxnID = status.ExternalTxnID
		if result.ExternalTxnID == "" {
			result.ExternalTxnID = refID
		}
		return result, nil
	case domain.ExternalStateFailed:
		result.Error = "mtn transaction failed"
		if status.Reason != "" {
			result.Error += ": " + status.Reason
		}
		return result, nil
	default:
		return nil, ErrStillPending
	}
}

// TransactionStatus looks up a collection by the reference it was submitted with.
func (p *MTNProvider) TransactionStatus(ctx context.Context, reference string) (*domain.ExternalStatus, error) {
	status, err := p.status(ctx, collection, referenceID(reference))
	if err != nil {
		return nil, err
	}
	status.Reference = reference
	return status, nil
}

type mtnStatusResponse struct {
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
}

func (p *MTNProvider) status(ctx context.Context, prod product, refID string) (*domain.ExternalStatus, error) {
	token, err := p.token(ctx, prod)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Target-Environment", p.cfg.TargetEnvironment).
		Get(prod.status + refID)
	if err != nil {
		return nil, fmt.Errorf("mtn %s status: %w", prod.name, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return &domain.ExternalStatus{Reference: refID, State: domain.ExternalStateUnknown}, nil
	case code != http.StatusOK:
		return nil, fmt.Errorf("mtn %s status: status %d", prod.name, code)
	}

	var body mtnStatusResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("mtn %s status: decode: %w", prod.name, err)
	}

	out := &domain.ExternalStatus{
		Reference:     refID,
		ExternalTxnID: body.FinancialTransactionID,
		Reason:        reasonText(body.Reason),
	}
	switch strings.ToUpper(body.Status) {
	case "SUCCESSFUL":
		out.State = domain.ExternalStateSuccessful
	case "FAILED", "REJECTED", "TIMEOUT":
		out.State = domain.ExternalStateFailed
	case "PENDING", "ONGOING":
		out.State = domain.ExternalStatePending
	default:
		out.State = domain.ExternalStateUnknown
	}
	return out, nil
}

type mtnBalanceResponse struct {
	AvailableBalance string `json:"availableBalance"`
	Currency         string `json:"currency"`
}

func (p *MTNProvider) Balance(ctx context.Context) (*domain.CollectorBalance, error) {
	token, err := p.token(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-Target-Environment", p.cfg.TargetEnvironment).
		Get("/collection/v1_0/account/balance")
	if err != nil {
		return nil, fmt.Errorf("mtn balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mtn balance: status %d", resp.StatusCode())
	}

	var body mtnBalanceResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("mtn balance: decode: %w", err)
	}
	amount, err := strconv.ParseFloat(body.AvailableBalance, 64)
	if err != nil {
		return nil, fmt.Errorf("mtn balance: parse %q: %w", body.AvailableBalance, err)
	}
	return &domain.CollectorBalance{
		Provider: domain.ProviderMTN,
		Balance:  int64(amount),
		Currency: body.Currency,
	}, nil
}

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached bearer token for the product, fetching a new one
// a little before the current one expires.
func (p *MTNProvider) token(ctx context.Context, prod product) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if t, ok := p.tokens[prod.name]; ok && now.Before(t.expiresAt) {
		return t.value, nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBasicAuth(p.cfg.APIUser, p.cfg.APIKey).
		Post("/" + prod.name + "/token/")
	if err != nil {
		return "", fmt.Errorf("mtn %s token: %w", prod.name, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("mtn %s token: status %d", prod.name, resp.StatusCode())
	}

	var body mtnTokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("mtn %s token: decode: %w", prod.name, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("mtn %s token: empty access token", prod.name)
	}

	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= 30 * time.Second
	}
	p.tokens[prod.name] = mtnToken{value: body.AccessToken, expiresAt: now.Add(ttl)}
	return body.AccessToken, nil
}

func (p *MTNProvider) msisdn(req domain.TransferRequest) string {
	number := req.PhoneNumber
	if number == "" {
		number = req.UserID
	}
	number = strings.TrimPrefix(number, "+")
	if p.cfg.PayerPrefix != "" && !strings.HasPrefix(number, p.cfg.PayerPrefix) {
		number = p.cfg.PayerPrefix + number
	}
	return number
}

// referenceID maps a caller reference onto the UUID MoMo requires in
// X-Reference-Id. UUID references pass through unchanged.
func referenceID(reference string) string {
	if id, err := uuid.Parse(reference); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("momo:"+reference)).String()
}

func errorMessage(body []byte) string {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && (e.Message != "" || e.Code != "") {
		if e.Message == "" {
			return e.Code
		}
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return errorMessage(raw)
}
