package enums

import "slices"

// BookingEventType maps to the action column of booking_events.
type BookingEventType string

const (
	BookingEventCreated         BookingEventType = "created"
	BookingEventApproved        BookingEventType = "approved"
	BookingEventRejected        BookingEventType = "rejected"
	BookingEventCancelled       BookingEventType = "cancelled"
	BookingEventCompleted       BookingEventType = "completed"
	BookingEventPaymentRecorded BookingEventType = "payment_recorded"
	BookingEventRefundRecorded  BookingEventType = "refund_recorded"
)

var validBookingEventTypes = []BookingEventType{
	BookingEventCreated,
	BookingEventApproved,
	BookingEventRejected,
	BookingEventCancelled,
	BookingEventCompleted,
	BookingEventPaymentRecorded,
	BookingEventRefundRecorded,
}

// String implements fmt.Stringer.
func (e BookingEventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches the canonical booking event set.
func (e BookingEventType) IsValid() bool {
	return slices.Contains(validBookingEventTypes, e)
}

// ParseBookingEventType converts raw input into a BookingEventType.
func ParseBookingEventType(value string) (BookingEventType, error) {
	return parse(validBookingEventTypes, value, "booking event type")
}
