package paystack

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdigs/campusdigs-backend/pkg/config"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
)

const testSecret = "sk_test_campusdigs"

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveGatewayCall(operation string, err error, _ time.Duration) {
	r.ops = append(r.ops, operation)
	r.errs = append(r.errs, err)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingObserver) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	observer := &recordingObserver{}
	client, err := NewClient(context.Background(), config.PaystackConfig{
		SecretKey: testSecret,
		BaseURL:   server.URL,
		Timeout:   time.Second,
	}, "NGN", observer, nil)
	require.NoError(t, err)
	return client, observer
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func TestNewClientRequiresSecret(t *testing.T) {
	_, err := NewClient(context.Background(), config.PaystackConfig{}, "NGN", nil, nil)
	require.ErrorIs(t, err, errSecretKeyRequired)
}

func TestInitializeTransactionSendsMinorUnits(t *testing.T) {
	var body map[string]any
	client, observer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer "+testSecret, r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"CDIGS-P1-U2-3"}}`))
	})

	result, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Amount:      decimal.RequireFromString("70000.50"),
		Email:       "ada@student.example",
		Reference:   "CDIGS-P1-U2-3",
		CallbackURL: "https://campusdigs.example/payments/callback",
		Metadata:    map[string]string{"booking_id": "b-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", result.AuthorizationURL)
	assert.Equal(t, "abc", result.AccessCode)
	assert.Equal(t, "CDIGS-P1-U2-3", result.Reference)

	assert.Equal(t, float64(7000050), body["amount"])
	assert.Equal(t, "NGN", body["currency"])
	assert.Equal(t, "ada@student.example", body["email"])
	assert.Equal(t, map[string]any{"booking_id": "b-1"}, body["metadata"])

	require.Equal(t, []string{OperationInitialize}, observer.ops)
	assert.NoError(t, observer.errs[0])
}

func TestInitializeTransactionErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
		code    pkgerrors.Code
	}{
		{name: "status false", status: http.StatusOK, payload: `{"status":false,"message":"Invalid key"}`, code: pkgerrors.CodeGatewayRejected},
		{name: "client error", status: http.StatusBadRequest, payload: `{"status":false,"message":"Duplicate Transaction Reference"}`, code: pkgerrors.CodeGatewayRejected},
		{name: "server error", status: http.StatusBadGateway, payload: `upstream down`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "garbage body", status: http.StatusOK, payload: `<html>`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "missing url", status: http.StatusOK, payload: `{"status":true,"data":{}}`, code: pkgerrors.CodeGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, observer := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			})
			_, err := client.InitializeTransaction(context.Background(), InitializeRequest{
				Amount:    decimal.NewFromInt(100),
				Email:     "ada@student.example",
				Reference: "ref",
			})
			requireCode(t, err, tt.code)
			require.Len(t, observer.errs, 1)
			assert.Error(t, observer.errs[0])
		})
	}
}

func TestInitializeTransactionRejectsSubKoboAmounts(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Amount:    decimal.RequireFromString("10.005"),
		Email:     "ada@student.example",
		Reference: "ref",
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.False(t, called)
}

func TestVerifyTransactionParsesSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/CDIGS-P1-U2-3", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"reference": "CDIGS-P1-U2-3",
				"status": "success",
				"amount": 7000000,
				"currency": "NGN",
				"channel": "card",
				"gateway_response": "Successful",
				"receipt_number": "10101",
				"paid_at": "2026-08-02T09:15:04.000Z",
				"customer": {"email": "ada@student.example"},
				"authorization": {"authorization_code": "AUTH_x1", "card_type": "visa ", "last4": "4081", "bank": "TEST BANK"},
				"metadata": {"booking_id": "b-1", "amount": 70000}
			}
		}`))
	})

	txn, err := client.VerifyTransaction(context.Background(), "CDIGS-P1-U2-3")
	require.NoError(t, err)
	assert.True(t, txn.Succeeded())
	assert.Equal(t, "70000.00", txn.Amount.StringFixed(2))
	assert.Equal(t, "NGN", txn.Currency)
	assert.Equal(t, "card", txn.Channel)
	assert.Equal(t, "AUTH_x1", txn.AuthorizationCode)
	assert.Equal(t, "visa", txn.CardType)
	assert.Equal(t, "10101", txn.ReceiptNumber)
	assert.Equal(t, "ada@student.example", txn.CustomerEmail)
	require.NotNil(t, txn.PaidAt)
	assert.True(t, txn.PaidAt.Equal(time.Date(2026, 8, 2, 9, 15, 4, 0, time.UTC)))
	assert.Equal(t, "b-1", txn.Metadata["booking_id"])
	assert.Equal(t, "70000", txn.Metadata["amount"])
}

func TestVerifyTransactionMalformedFields(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		code    pkgerrors.Code
	}{
		{name: "missing amount", payload: `{"status":true,"data":{"status":"success"}}`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "missing status", payload: `{"status":true,"data":{"amount":100}}`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "bad paid_at", payload: `{"status":true,"data":{"status":"success","amount":100,"paid_at":"yesterday"}}`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "missing data", payload: `{"status":true}`, code: pkgerrors.CodeGatewayUnavailable},
		{name: "unknown reference", payload: `{"status":false,"message":"Transaction reference not found"}`, code: pkgerrors.CodeGatewayRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.payload))
			})
			_, err := client.VerifyTransaction(context.Background(), "ref")
			requireCode(t, err, tt.code)
		})
	}
}

func TestVerifyTransactionReportsFailedStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"abandoned","amount":0,"metadata":""}}`))
	})
	txn, err := client.VerifyTransaction(context.Background(), "ref")
	require.NoError(t, err)
	assert.False(t, txn.Succeeded())
	assert.Equal(t, "abandoned", txn.Status)
	assert.Equal(t, "ref", txn.Reference)
	assert.Empty(t, txn.Metadata)
}

func TestVerifyTransactionRejectsForeignReference(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":"CDIGS-P9-U9-9","status":"success","amount":7000000}}`))
	})
	_, err := client.VerifyTransaction(context.Background(), "CDIGS-P1-U2-3")
	requireCode(t, err, pkgerrors.CodeGatewayUnavailable)
	assert.Contains(t, err.Error(), "another reference")
}

func TestVerifyTransactionTrimsReturnedReference(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":" CDIGS-P1-U2-3 ","status":"success","amount":100}}`))
	})
	txn, err := client.VerifyTransaction(context.Background(), "CDIGS-P1-U2-3")
	require.NoError(t, err)
	assert.Equal(t, "CDIGS-P1-U2-3", txn.Reference)
}

func TestVerifyTransactionTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), config.PaystackConfig{
		SecretKey: testSecret,
		BaseURL:   server.URL,
		Timeout:   20 * time.Millisecond,
	}, "NGN", nil, nil)
	require.NoError(t, err)

	_, err = client.VerifyTransaction(context.Background(), "ref")
	requireCode(t, err, pkgerrors.CodeGatewayUnavailable)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ref"}}`)
	signature := hex.EncodeToString(Sign(testSecret, body))

	assert.True(t, VerifySignature(testSecret, body, signature))
	assert.False(t, VerifySignature(testSecret, append(body, ' '), signature))
	assert.False(t, VerifySignature("other", body, signature))
	assert.False(t, VerifySignature(testSecret, body, "not-hex"))
	assert.False(t, VerifySignature(testSecret, body, ""))

	client := &Client{secretKey: testSecret}
	assert.True(t, client.VerifySignature(body, signature))
}

func TestMinorUnitConversion(t *testing.T) {
	minor, err := ToMinorUnits(decimal.RequireFromString("15000.25"))
	require.NoError(t, err)
	assert.Equal(t, int64(1500025), minor)
	assert.Equal(t, "15000.25", FromMinorUnits(minor).StringFixed(2))

	_, err = ToMinorUnits(decimal.Zero)
	requireCode(t, err, pkgerrors.CodeValidation)
}
