package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusdigs/campusdigs-backend/pkg/config"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/logger"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20

	OperationInitialize = "initialize"
	OperationVerify     = "verify"
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Observer receives the outcome and latency of every gateway call.
type Observer interface {
	ObserveGatewayCall(operation string, err error, duration time.Duration)
}

// Client talks to the Paystack transaction API.
type Client struct {
	http      *http.Client
	baseURL   string
	secretKey string
	currency  string
	observer  Observer
}

// NewClient builds a client from config. The HTTP timeout bounds every call.
func NewClient(ctx context.Context, cfg config.PaystackConfig, currency string, observer Observer, logg *logger.Logger) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse paystack base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logg != nil {
		logg.Info(ctx, "paystack client initialized")
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		secretKey: secret,
		currency:  strings.ToUpper(strings.TrimSpace(currency)),
		observer:  observer,
	}, nil
}

// InitializeTransaction opens a hosted checkout for req.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (result *InitializeResult, err error) {
	defer c.observe(OperationInitialize, time.Now(), &err)

	minor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	body := initializeBody{
		Amount:      minor,
		Email:       req.Email,
		Reference:   req.Reference,
		Currency:    currency,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}

	var env envelope[initializeData]
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, rejected(env.Message)
	}
	if env.Data == nil || env.Data.AuthorizationURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "paystack initialize response missing authorization url")
	}
	reference := env.Data.Reference
	if reference == "" {
		reference = req.Reference
	}
	return &InitializeResult{
		AuthorizationURL: env.Data.AuthorizationURL,
		AccessCode:       env.Data.AccessCode,
		Reference:        reference,
	}, nil
}

// VerifyTransaction fetches the gateway's view of reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (txn *Transaction, err error) {
	defer c.observe(OperationVerify, time.Now(), &err)

	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	var env envelope[verifyData]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, rejected(env.Message)
	}
	if env.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "paystack verify response missing data")
	}
	return env.Data.toTransaction(reference)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paystack request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "paystack request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "read paystack response")
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return pkgerrors.New(pkgerrors.CodeGatewayUnavailable, fmt.Sprintf("paystack returned %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		var failure envelope[json.RawMessage]
		_ = json.Unmarshal(raw, &failure)
		return rejected(failure.Message).WithDetails(map[string]any{"http_status": resp.StatusCode})
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode paystack response")
	}
	return nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveGatewayCall(operation, *err, time.Since(start))
}

func rejected(message string) *pkgerrors.Error {
	if message == "" {
		message = "request rejected"
	}
	return pkgerrors.New(pkgerrors.CodeGatewayRejected, "paystack: "+message)
}
