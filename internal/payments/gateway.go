package payments

import (
	"context"

	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
)

// Gateway is the hosted-checkout provider. *paystack.Client satisfies it.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// Metadata keys sent to the gateway so a payment can be reconciled without its intent.
const (
	metaBookingID   = "booking_id"
	metaPropertyID  = "property_id"
	metaStudentID   = "student_id"
	metaPaymentType = "payment_type"
	metaAmount      = "amount"
)
