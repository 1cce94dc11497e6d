package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savings-ledger/internal/core/domain"
	"savings-ledger/pkg/clock"
)

type fakeMoMo struct {
	mu           sync.Mutex
	submitStatus int
	poll         map[string]any
	pollStatus   int

	tokenCalls  atomic.Int32
	submitCalls atomic.Int32
	lastBody    map[string]any
	lastHeaders http.Header
}

func (f *fakeMoMo) setPollStatus(code int) {
	f.mu.Lock()
	f.pollStatus = code
	f.mu.Unlock()
}

func (f *fakeMoMo) sent() (map[string]any, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody, f.lastHeaders
}

func (f *fakeMoMo) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /collection/token/", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api-user" || pass != "api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"access_token","expires_in":3600}`))
	})
	mux.HandleFunc("POST /collection/v1_0/requesttopay", func(w http.ResponseWriter, r *http.Request) {
		f.submitCalls.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		w.WriteHeader(f.submitStatus)
		if f.submitStatus == http.StatusBadRequest {
			_, _ = w.Write([]byte(`{"code":"PAYER_NOT_FOUND","message":"Payer not found"}`))
		}
	})
	mux.HandleFunc("GET /collection/v1_0/requesttopay/{ref}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.pollStatus != 0 && f.pollStatus != http.StatusOK {
			w.WriteHeader(f.pollStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.poll)
	})
	mux.HandleFunc("GET /collection/v1_0/account/balance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"availableBalance":"125000.00","currency":"XAF"}`))
	})
	return mux
}

func newTestMTN(t *testing.T, f *fakeMoMo) (*MTNProvider, *clock.Fake) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	clk := clock.NewFake(t0)
	p := NewMTNProvider(MTNConfig{
		BaseURL:           srv.URL,
		SubscriptionKey:   "sub-key",
		APIUser:           "api-user",
		APIKey:            "api-key",
		TargetEnvironment: "sandbox",
		Currency:          "XAF",
		PayerPrefix:       "237",
		Timeout:           5 * time.Second,
	}, clk)
	return p, clk
}

func TestMTN_RequestToPay_Successful(t *testing.T) {
	f := &fakeMoMo{
		submitStatus: http.StatusAccepted,
		poll:         map[string]any{"status": "SUCCESSFUL", "financialTransactionId": "FT-123"},
	}
	p, _ := newTestMTN(t, f)
	ref := uuid.New().String()

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{
		UserID: "u1", Amount: 4950, Reference: ref, PhoneNumber: "670000000",
	})
	require.NoError(t, err)

	body, headers := f.sent()
	assert.True(t, res.Success)
	assert.Equal(t, "FT-123", res.ExternalTxnID)
	assert.Equal(t, "4950", body["amount"])
	assert.Equal(t, "XAF", body["currency"])
	assert.Equal(t, ref, body["externalId"])
	payer := body["payer"].(map[string]any)
	assert.Equal(t, "MSISDN", payer["partyIdType"])
	assert.Equal(t, "237670000000", payer["partyId"])

	assert.Equal(t, ref, headers.Get("X-Reference-Id"))
	assert.Equal(t, "sandbox", headers.Get("X-Target-Environment"))
	assert.Equal(t, "sub-key", headers.Get("Ocp-Apim-Subscription-Key"))
	assert.Equal(t, "Bearer tok-1", headers.Get("Authorization"))
}

func TestMTN_TokenCachedUntilExpiry(t *testing.T) {
	f := &fakeMoMo{
		submitStatus: http.StatusAccepted,
		poll:         map[string]any{"status": "SUCCESSFUL"},
	}
	p, clk := newTestMTN(t, f)
	req := domain.TransferRequest{Amount: 10, Reference: "ref-a", PhoneNumber: "237670000000"}

	_, err := p.RequestToPay(context.Background(), req)
	require.NoError(t, err)
	_, err = p.RequestToPay(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	clk.Advance(time.Hour)
	_, err = p.RequestToPay(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestMTN_RequestToPay_FailedIsRejection(t *testing.T) {
	f := &fakeMoMo{
		submitStatus: http.StatusAccepted,
		poll:         map[string]any{"status": "FAILED", "reason": "APPROVAL_REJECTED"},
	}
	p, _ := newTestMTN(t, f)

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "APPROVAL_REJECTED")
}

func TestMTN_RequestToPay_PendingIsTransient(t *testing.T) {
	f := &fakeMoMo{
		submitStatus: http.StatusAccepted,
		poll:         map[string]any{"status": "PENDING"},
	}
	p, _ := newTestMTN(t, f)

	_, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r"})
	assert.ErrorIs(t, err, ErrStillPending)
}

func TestMTN_RequestToPay_ClientErrorIsRejection(t *testing.T) {
	f := &fakeMoMo{submitStatus: http.StatusBadRequest}
	p, _ := newTestMTN(t, f)

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Payer not found")
}

func TestMTN_RequestToPay_ServerErrorIsTransient(t *testing.T) {
	f := &fakeMoMo{submitStatus: http.StatusServiceUnavailable}
	p, _ := newTestMTN(t, f)

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r"})
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestMTN_NonUUIDReferenceIsStable(t *testing.T) {
	f := &fakeMoMo{
		submitStatus: http.StatusAccepted,
		poll:         map[string]any{"status": "SUCCESSFUL"},
	}
	p, _ := newTestMTN(t, f)

	res, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "loan-42"})
	require.NoError(t, err)

	_, headers := f.sent()
	refID := headers.Get("X-Reference-Id")
	_, parseErr := uuid.Parse(refID)
	assert.NoError(t, parseErr)
	assert.Equal(t, referenceID("loan-42"), refID)
	assert.Equal(t, refID, res.ExternalTxnID)
}

func TestMTN_TransactionStatus(t *testing.T) {
	f := &fakeMoMo{poll: map[string]any{"status": "PENDING"}}
	p, _ := newTestMTN(t, f)

	status, err := p.TransactionStatus(context.Background(), "stl-7")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalStatePending, status.State)
	assert.Equal(t, "stl-7", status.Reference)

	f.setPollStatus(http.StatusNotFound)
	status, err = p.TransactionStatus(context.Background(), "stl-8")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalStateUnknown, status.State)
}

func TestMTN_Balance(t *testing.T) {
	p, _ := newTestMTN(t, &fakeMoMo{})

	bal, err := p.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(125000), bal.Balance)
	assert.Equal(t, "XAF", bal.Currency)
}

func TestMTN_BadCredentials(t *testing.T) {
	f := &fakeMoMo{submitStatus: http.StatusAccepted}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	p := NewMTNProvider(MTNConfig{BaseURL: srv.URL, APIUser: "x", APIKey: "y"}, clock.NewFake(t0))
	_, err := p.RequestToPay(context.Background(), domain.TransferRequest{Amount: 10, Reference: "r"})
	assert.Error(t, err)
	assert.Equal(t, int32(0), f.submitCalls.Load())
}
