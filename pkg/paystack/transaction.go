package paystack

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
)

// StatusSuccess is the only transaction status that settles a payment.
const StatusSuccess = "success"

var minorUnitsPerMajor = decimal.NewFromInt(100)

// InitializeRequest is expressed in major units; the client converts at the wire.
type InitializeRequest struct {
	Amount      decimal.Decimal
	Email       string
	Reference   string
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

// InitializeResult carries what the student needs to reach the hosted page.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// Transaction is the verified state of a charge, amounts in major units.
type Transaction struct {
	Reference         string
	Status            string
	Amount            decimal.Decimal
	Currency          string
	Channel           string
	AuthorizationCode string
	CardType          string
	Last4             string
	Bank              string
	GatewayResponse   string
	ReceiptNumber     string
	CustomerEmail     string
	PaidAt            *time.Time
	Metadata          map[string]string
}

// Succeeded reports whether the gateway settled the charge.
func (t *Transaction) Succeeded() bool {
	return t != nil && strings.EqualFold(t.Status, StatusSuccess)
}

// ToMinorUnits converts a major-unit amount to kobo. Fractions of a kobo are rejected.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	minor := amount.Mul(minorUnitsPerMajor)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has more than two decimal places")
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts kobo to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorUnitsPerMajor).Round(2)
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

type initializeBody struct {
	Amount      int64             `json:"amount"`
	Email       string            `json:"email"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          *int64          `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	ReceiptNumber   *string         `json:"receipt_number"`
	PaidAt          *string         `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata"`
	Customer        struct {
		Email string `json:"email"`
	} `json:"customer"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
		Channel           string `json:"channel"`
		CardType          string `json:"card_type"`
		Last4             string `json:"last4"`
		Bank              string `json:"bank"`
	} `json:"authorization"`
}

func (d *verifyData) toTransaction(requested string) (*Transaction, error) {
	status := strings.TrimSpace(d.Status)
	if status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "paystack verify response missing status")
	}
	if d.Amount == nil || *d.Amount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "paystack verify response missing amount")
	}

	txn := &Transaction{
		Reference:         strings.TrimSpace(d.Reference),
		Status:            strings.ToLower(status),
		Amount:            FromMinorUnits(*d.Amount),
		Currency:          strings.ToUpper(d.Currency),
		Channel:           d.Channel,
		AuthorizationCode: d.Authorization.AuthorizationCode,
		CardType:          strings.TrimSpace(d.Authorization.CardType),
		Last4:             d.Authorization.Last4,
		Bank:              d.Authorization.Bank,
		GatewayResponse:   d.GatewayResponse,
		CustomerEmail:     d.Customer.Email,
	}
	switch txn.Reference {
	case "":
		txn.Reference = requested
	case requested:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "paystack verify response names another reference").
			WithDetails(map[string]any{"requested": requested, "returned": txn.Reference})
	}
	if txn.Channel == "" {
		txn.Channel = d.Authorization.Channel
	}
	if d.ReceiptNumber != nil {
		txn.ReceiptNumber = *d.ReceiptNumber
	}
	if d.PaidAt != nil && *d.PaidAt != "" {
		paidAt, err := time.Parse(time.RFC3339, *d.PaidAt)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "paystack paid_at is not ISO-8601")
		}
		paidAt = paidAt.UTC()
		txn.PaidAt = &paidAt
	}
	metadata, err := decodeMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}
	txn.Metadata = metadata
	return txn, nil
}

// decodeMetadata accepts an object, a JSON-encoded object string, or empty values.
func decodeMetadata(raw json.RawMessage) (map[string]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "0" {
		return map[string]string{}, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode paystack metadata")
		}
		return decodeMetadata(json.RawMessage(inner))
	}

	var values map[string]any
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&values); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "decode paystack metadata")
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case nil:
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		case bool:
			out[key] = fmt.Sprint(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out, nil
}
