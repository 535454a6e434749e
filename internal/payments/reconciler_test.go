package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campusdigs/campusdigs-backend/internal/audit"
	"github.com/campusdigs/campusdigs-backend/internal/bookings"
	"github.com/campusdigs/campusdigs-backend/pkg/config"
	"github.com/campusdigs/campusdigs-backend/pkg/db"
	"github.com/campusdigs/campusdigs-backend/pkg/db/dbtest"
	"github.com/campusdigs/campusdigs-backend/pkg/db/models"
	"github.com/campusdigs/campusdigs-backend/pkg/enums"
	pkgerrors "github.com/campusdigs/campusdigs-backend/pkg/errors"
	"github.com/campusdigs/campusdigs-backend/pkg/metrics"
	"github.com/campusdigs/campusdigs-backend/pkg/outbox"
	"github.com/campusdigs/campusdigs-backend/pkg/paystack"
)

var fixedNow = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	client     *db.Client
	conn       *gorm.DB
	gateway    *fakeGateway
	intents    *memoryIntents
	metrics    *countingMetrics
	propertyID uuid.UUID
	landlordID uuid.UUID
	studentID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	f := &fixture{
		client:     client,
		conn:       conn,
		gateway:    &fakeGateway{},
		intents:    newMemoryIntents(),
		metrics:    newCountingMetrics(),
		landlordID: uuid.New(),
		studentID:  uuid.New(),
	}
	property := models.Property{
		ID:              uuid.New(),
		LandlordID:      f.landlordID,
		Title:           "Two-bed flat, Akoka",
		MonthlyRent:     decimal.RequireFromString("15000.00"),
		SecurityDeposit: decimal.RequireFromString("10000.00"),
		Status:          enums.PropertyStatusActive,
	}
	require.NoError(t, conn.Create(&property).Error)
	f.propertyID = property.ID
	return f
}

func (f *fixture) seedBooking(t *testing.T, status enums.BookingStatus, paymentStatus enums.BookingPaymentStatus) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:                  uuid.New(),
		BookingReference:    "CD202608" + uuid.NewString()[:8],
		StudentID:           f.studentID,
		LandlordID:          f.landlordID,
		PropertyID:          f.propertyID,
		MoveInDate:          time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		LeaseDurationMonths: 4,
		MonthlyRent:         decimal.RequireFromString("15000.00"),
		SecurityDeposit:     decimal.RequireFromString("10000.00"),
		TotalAmount:         decimal.RequireFromString("70000.00"),
		CommissionAmount:    decimal.RequireFromString("6000.00"),
		LandlordPayout:      decimal.RequireFromString("64000.00"),
		Status:              status,
		PaymentStatus:       paymentStatus,
	}
	require.NoError(t, f.conn.Create(booking).Error)
	return booking
}

func (f *fixture) reconciler(t *testing.T, bookingRepo bookings.Repository, paymentRepo Repository) *Reconciler {
	t.Helper()
	if bookingRepo == nil {
		bookingRepo = bookings.NewRepository(f.conn)
	}
	if paymentRepo == nil {
		paymentRepo = NewRepository(f.conn)
	}
	auditSvc, err := audit.NewService(audit.NewRepository(f.conn), nil, nil)
	require.NoError(t, err)
	r, err := NewReconciler(ReconcilerParams{
		Payments: paymentRepo,
		Bookings: bookingRepo,
		Gateway:  f.gateway,
		Intents:  f.intents,
		Audit:    auditSvc,
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Tx:       f.client,
		Metrics:  f.metrics,
		Config: config.PaymentConfig{
			Currency:        "NGN",
			AmountTolerance: decimal.RequireFromString("1.00"),
		},
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) saveIntent(t *testing.T, reference string, booking *models.Booking) {
	t.Helper()
	intent := Intent{
		Reference:   reference,
		PropertyID:  f.propertyID,
		StudentID:   f.studentID,
		Amount:      decimal.RequireFromString("70000.00"),
		Currency:    enums.CurrencyNGN,
		PaymentType: enums.PaymentTypeFull,
		Email:       "ada@student.example",
		CreatedAt:   fixedNow,
	}
	if booking != nil {
		intent.BookingID = &booking.ID
	}
	require.NoError(t, f.intents.Save(context.Background(), intent))
}

func successTxn(amount string) *paystack.Transaction {
	paidAt := fixedNow.Add(5 * time.Minute)
	return &paystack.Transaction{
		Status:            paystack.StatusSuccess,
		Amount:            decimal.RequireFromString(amount),
		Currency:          "NGN",
		Channel:           "card",
		AuthorizationCode: "AUTH_x1",
		CustomerEmail:     "ada@student.example",
		PaidAt:            &paidAt,
	}
}

func (f *fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Where(where, args...).Count(&n).Error)
	return n
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	var booking models.Booking
	require.NoError(t, f.conn.Where("id = ?", id).First(&booking).Error)
	return booking
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), "unexpected error: %v", err)
}

func TestReconcileRecordsPaymentAndMarksBookingPaid(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")
	r := f.reconciler(t, nil, nil)

	result, err := r.Reconcile(context.Background(), "REF-1")
	require.NoError(t, err)
	assert.True(t, result.Paid)
	assert.False(t, result.AlreadyRecorded)
	assert.Equal(t, "70000.00", result.Amount.StringFixed(2))
	assert.Equal(t, "card", result.Channel)
	require.NotNil(t, result.BookingID)
	assert.Equal(t, booking.ID, *result.BookingID)

	stored := f.reload(t, booking.ID)
	assert.Equal(t, enums.BookingPaymentPaid, stored.PaymentStatus)
	assert.Equal(t, enums.BookingStatusApproved, stored.Status)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "REF-1", *stored.PaymentReference)

	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "payment_reference = ?", "REF-1"))
	assert.EqualValues(t, 1, f.count(t, &models.BookingEvent{}, "booking_id = ? AND action = ?", booking.ID, enums.BookingEventPaymentRecorded))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "aggregate_id = ? AND event_type = ?", booking.ID, enums.EventBookingPaid))

	assert.False(t, f.intents.has("REF-1"))
	assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeRecorded])
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")
	r := f.reconciler(t, nil, nil)

	first, err := r.Reconcile(context.Background(), "REF-1")
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), " REF-1 ")
	require.NoError(t, err)

	assert.True(t, second.AlreadyRecorded)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 1, f.gateway.verifyCalls())
	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "payment_reference = ?", "REF-1"))
	assert.EqualValues(t, 1, f.count(t, &models.BookingEvent{}, "booking_id = ? AND action = ?", booking.ID, enums.BookingEventPaymentRecorded))
	assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeAlreadyRecorded])
}

func TestReconcileConcurrentCallsRecordOnce(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	txn := successTxn("70000.00")
	txn.Metadata = map[string]string{metaBookingID: booking.ID.String()}
	f.gateway.txn = txn
	r := f.reconciler(t, nil, nil)

	const callers = 4
	results := make([]*ReconciliationResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Reconcile(context.Background(), "REF-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PaymentID, results[i].PaymentID)
	}
	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "payment_reference = ?", "REF-1"))
	assert.EqualValues(t, 1, f.count(t, &models.BookingEvent{}, "booking_id = ? AND action = ?", booking.ID, enums.BookingEventPaymentRecorded))
}

// racingPayments hides the existing row from the first lookup, as if another
// writer committed between the lookup and the insert.
type racingPayments struct {
	Repository
	misses int
}

func (r *racingPayments) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if r.misses > 0 {
		r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.Repository.FindByReference(ctx, reference)
}

func TestReconcileFallsBackWhenInsertLosesRace(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")

	winner := &models.Payment{
		ID:               uuid.New(),
		PaymentReference: "REF-1",
		BookingID:        &booking.ID,
		StudentID:        f.studentID,
		PropertyID:       f.propertyID,
		Amount:           decimal.RequireFromString("70000.00"),
		Currency:         enums.CurrencyNGN,
		PaymentType:      enums.PaymentTypeFull,
		PaymentStatus:    enums.PaymentStatusCompleted,
		GatewayStatus:    paystack.StatusSuccess,
	}
	require.NoError(t, f.conn.Create(winner).Error)

	r := f.reconciler(t, nil, &racingPayments{Repository: NewRepository(f.conn), misses: 1})
	result, err := r.Reconcile(context.Background(), "REF-1")
	require.NoError(t, err)
	assert.True(t, result.AlreadyRecorded)
	assert.Equal(t, winner.ID, result.PaymentID)

	assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "payment_reference = ?", "REF-1"))
	assert.EqualValues(t, 0, f.count(t, &models.BookingEvent{}, "booking_id = ?", booking.ID))
}

func TestReconcileUsesMetadataWithoutIntent(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	txn := successTxn("70000.00")
	txn.Metadata = map[string]string{metaBookingID: booking.ID.String()}
	f.gateway.txn = txn
	r := f.reconciler(t, nil, nil)

	result, err := r.Reconcile(context.Background(), "REF-META")
	require.NoError(t, err)
	assert.Equal(t, f.studentID, result.StudentID)
	assert.Equal(t, f.propertyID, result.PropertyID)
	assert.Equal(t, enums.BookingPaymentPaid, f.reload(t, booking.ID).PaymentStatus)
}

func TestReconcilePropertyChargeFromMetadataAmount(t *testing.T) {
	f := newFixture(t)
	txn := successTxn("5000.00")
	txn.Metadata = map[string]string{
		metaPropertyID: f.propertyID.String(),
		metaStudentID:  f.studentID.String(),
		metaAmount:     "5000.00",
	}
	f.gateway.txn = txn
	r := f.reconciler(t, nil, nil)

	result, err := r.Reconcile(context.Background(), "REF-PROP")
	require.NoError(t, err)
	assert.Nil(t, result.BookingID)
	assert.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}, "1 = 1"))
}

func TestReconcileRejectsUnknownExpectation(t *testing.T) {
	f := newFixture(t)
	f.gateway.txn = successTxn("5000.00")
	r := f.reconciler(t, nil, nil)

	_, err := r.Reconcile(context.Background(), "REF-ORPHAN")
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.EqualValues(t, 0, f.count(t, &models.Payment{}, "1 = 1"))
}

func TestReconcileAmountTolerance(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  bool
	}{
		{name: "exact", amount: "70000.00", currency: "NGN"},
		{name: "within tolerance", amount: "70000.99", currency: "NGN"},
		{name: "at tolerance", amount: "69999.00", currency: "NGN"},
		{name: "short", amount: "69000.00", currency: "NGN", wantErr: true},
		{name: "over", amount: "70001.01", currency: "NGN", wantErr: true},
		{name: "wrong currency", amount: "70000.00", currency: "USD", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
			f.saveIntent(t, "REF-1", booking)
			txn := successTxn(tt.amount)
			txn.Currency = tt.currency
			f.gateway.txn = txn
			r := f.reconciler(t, nil, nil)

			_, err := r.Reconcile(context.Background(), "REF-1")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			requireCode(t, err, pkgerrors.CodeAmountMismatch)
			assert.Equal(t, 1, f.metrics.mismatches)
			assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeAmountMismatch])
			assert.EqualValues(t, 0, f.count(t, &models.Payment{}, "1 = 1"))
			assert.Equal(t, enums.BookingPaymentPending, f.reload(t, booking.ID).PaymentStatus)
			assert.True(t, f.intents.has("REF-1"))
		})
	}
}

func TestReconcileGatewayOutcomes(t *testing.T) {
	t.Run("not successful", func(t *testing.T) {
		f := newFixture(t)
		txn := successTxn("70000.00")
		txn.Status = "abandoned"
		f.gateway.txn = txn
		r := f.reconciler(t, nil, nil)

		_, err := r.Reconcile(context.Background(), "REF-1")
		requireCode(t, err, pkgerrors.CodePaymentFailed)
		assert.Equal(t, "abandoned", GatewayStatusOf(err))
		assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeFailed])
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.verifyErr = errors.New("dial tcp: timeout")
		r := f.reconciler(t, nil, nil)

		_, err := r.Reconcile(context.Background(), "REF-1")
		requireCode(t, err, pkgerrors.CodeGatewayUnavailable)
		assert.Empty(t, GatewayStatusOf(err))
		assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeGatewayError])
	})

	t.Run("typed gateway error passes through", func(t *testing.T) {
		f := newFixture(t)
		f.gateway.verifyErr = pkgerrors.New(pkgerrors.CodeGatewayRejected, "Transaction reference not found")
		r := f.reconciler(t, nil, nil)

		_, err := r.Reconcile(context.Background(), "REF-1")
		requireCode(t, err, pkgerrors.CodeGatewayRejected)
	})

	t.Run("blank reference", func(t *testing.T) {
		f := newFixture(t)
		r := f.reconciler(t, nil, nil)
		_, err := r.Reconcile(context.Background(), "  ")
		requireCode(t, err, pkgerrors.CodeValidation)
		assert.Zero(t, f.gateway.verifyCalls())
	})
}

func TestReconcileConflictsWhenBookingNotAwaitingPayment(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusCancelled, enums.BookingPaymentRefunded)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")
	r := f.reconciler(t, nil, nil)

	_, err := r.Reconcile(context.Background(), "REF-1")
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.EqualValues(t, 0, f.count(t, &models.Payment{}, "1 = 1"))
	assert.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}, "1 = 1"))
	assert.True(t, f.intents.has("REF-1"))
}

func TestReconcileAfterCancelRecordsFullRefund(t *testing.T) {
	for _, status := range []enums.BookingStatus{enums.BookingStatusCancelled, enums.BookingStatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			booking := f.seedBooking(t, status, enums.BookingPaymentPending)
			f.saveIntent(t, "REF-1", booking)
			f.gateway.txn = successTxn("70000.00")
			r := f.reconciler(t, nil, nil)

			result, err := r.Reconcile(context.Background(), "REF-1")
			require.NoError(t, err)
			assert.True(t, result.Paid)

			stored := f.reload(t, booking.ID)
			assert.Equal(t, status, stored.Status)
			assert.Equal(t, enums.BookingPaymentRefunded, stored.PaymentStatus)
			require.NotNil(t, stored.RefundAmount)
			assert.Equal(t, "70000.00", stored.RefundAmount.StringFixed(2))
			require.NotNil(t, stored.PaymentReference)
			assert.Equal(t, "REF-1", *stored.PaymentReference)

			assert.EqualValues(t, 1, f.count(t, &models.Payment{}, "payment_reference = ?", "REF-1"))
			assert.EqualValues(t, 1, f.count(t, &models.BookingEvent{}, "booking_id = ? AND action = ?", booking.ID, enums.BookingEventPaymentRecorded))
			assert.EqualValues(t, 1, f.count(t, &models.BookingEvent{}, "booking_id = ? AND action = ?", booking.ID, enums.BookingEventRefundRecorded))
			assert.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaid))
			assert.False(t, f.intents.has("REF-1"))

			again, err := r.Reconcile(context.Background(), "REF-1")
			require.NoError(t, err)
			assert.True(t, again.AlreadyRecorded)
			assert.Equal(t, result.PaymentID, again.PaymentID)
		})
	}
}

func TestReconcileConflictsWhenBookingNotApproved(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusPending, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")
	r := f.reconciler(t, nil, nil)

	_, err := r.Reconcile(context.Background(), "REF-1")
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.EqualValues(t, 0, f.count(t, &models.Payment{}, "1 = 1"))
	assert.Equal(t, enums.BookingPaymentPending, f.reload(t, booking.ID).PaymentStatus)
}

func TestOwnerReadsPaymentThenIntent(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	r := f.reconciler(t, nil, nil)
	ctx := context.Background()

	owner, err := r.Owner(ctx, "REF-1")
	require.NoError(t, err)
	assert.Equal(t, f.studentID, owner)

	owner, err = r.Owner(ctx, "REF-UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, owner)

	f.gateway.txn = successTxn("70000.00")
	_, err = r.Reconcile(ctx, "REF-1")
	require.NoError(t, err)
	require.False(t, f.intents.has("REF-1"))

	owner, err = r.Owner(ctx, "REF-1")
	require.NoError(t, err)
	assert.Equal(t, f.studentID, owner)
	assert.Equal(t, 1, f.gateway.verifyCalls())
}

// failingBookings breaks MarkPaid after the payment insert has run.
type failingBookings struct {
	bookings.Repository
}

func (f failingBookings) WithTx(tx *gorm.DB) bookings.Repository {
	return failingBookings{Repository: f.Repository.WithTx(tx)}
}

func (f failingBookings) MarkPaid(context.Context, uuid.UUID, string) (bool, error) {
	return false, errors.New("disk full")
}

func TestReconcileRollsBackOnBookingFailure(t *testing.T) {
	f := newFixture(t)
	booking := f.seedBooking(t, enums.BookingStatusApproved, enums.BookingPaymentPending)
	f.saveIntent(t, "REF-1", booking)
	f.gateway.txn = successTxn("70000.00")
	r := f.reconciler(t, failingBookings{Repository: bookings.NewRepository(f.conn)}, nil)

	_, err := r.Reconcile(context.Background(), "REF-1")
	requireCode(t, err, pkgerrors.CodeDependency)

	assert.EqualValues(t, 0, f.count(t, &models.Payment{}, "1 = 1"))
	assert.EqualValues(t, 0, f.count(t, &models.BookingEvent{}, "1 = 1"))
	assert.EqualValues(t, 0, f.count(t, &models.OutboxEvent{}, "1 = 1"))
	assert.Equal(t, enums.BookingPaymentPending, f.reload(t, booking.ID).PaymentStatus)
	assert.Equal(t, 1, f.metrics.outcomes[metrics.OutcomeError])
}
