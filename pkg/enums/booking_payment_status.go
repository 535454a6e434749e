package enums

import "slices"

// BookingPaymentStatus tracks whether money has been settled against a booking.
type BookingPaymentStatus string

const (
	BookingPaymentPending  BookingPaymentStatus = "pending"
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

var validBookingPaymentStatuses = []BookingPaymentStatus{
	BookingPaymentPending,
	BookingPaymentPaid,
	BookingPaymentRefunded,
}

// String implements fmt.Stringer.
func (s BookingPaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BookingPaymentStatus.
func (s BookingPaymentStatus) IsValid() bool {
	return slices.Contains(validBookingPaymentStatuses, s)
}

// ParseBookingPaymentStatus converts raw input into a BookingPaymentStatus.
func ParseBookingPaymentStatus(value string) (BookingPaymentStatus, error) {
	return parse(validBookingPaymentStatuses, value, "booking payment status")
}
