package bookings

import "github.com/campusdigs/campusdigs-backend/pkg/enums"

// transitions is the only place booking status moves are defined.
// Terminal statuses have no entry.
var transitions = map[enums.BookingStatus]map[enums.BookingAction]enums.BookingStatus{
	enums.BookingStatusPending: {
		enums.BookingActionApprove: enums.BookingStatusApproved,
		enums.BookingActionReject:  enums.BookingStatusRejected,
		enums.BookingActionCancel:  enums.BookingStatusCancelled,
	},
	enums.BookingStatusApproved: {
		enums.BookingActionCancel:   enums.BookingStatusCancelled,
		enums.BookingActionComplete: enums.BookingStatusCompleted,
	},
}

// NextStatus returns the status action leads to from current, if allowed.
func NextStatus(current enums.BookingStatus, action enums.BookingAction) (enums.BookingStatus, bool) {
	next, ok := transitions[current][action]
	return next, ok
}

// actionEvents maps each action to its audit action and outbox event.
var actionEvents = map[enums.BookingAction]struct {
	audit  enums.BookingEventType
	outbox enums.OutboxEventType
}{
	enums.BookingActionApprove:  {enums.BookingEventApproved, enums.EventBookingApproved},
	enums.BookingActionReject:   {enums.BookingEventRejected, enums.EventBookingRejected},
	enums.BookingActionCancel:   {enums.BookingEventCancelled, enums.EventBookingCancelled},
	enums.BookingActionComplete: {enums.BookingEventCompleted, enums.EventBookingCompleted},
}
