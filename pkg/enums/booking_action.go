package enums

import "slices"

// BookingAction names a state machine transition request.
type BookingAction string

const (
	BookingActionApprove  BookingAction = "approve"
	BookingActionReject   BookingAction = "reject"
	BookingActionCancel   BookingAction = "cancel"
	BookingActionComplete BookingAction = "complete"
)

var validBookingActions = []BookingAction{
	BookingActionApprove,
	BookingActionReject,
	BookingActionCancel,
	BookingActionComplete,
}

func (a BookingAction) String() string {
	return string(a)
}

func (a BookingAction) IsValid() bool {
	return slices.Contains(validBookingActions, a)
}

// ParseBookingAction converts raw input into a BookingAction.
func ParseBookingAction(value string) (BookingAction, error) {
	return parse(validBookingActions, value, "booking action")
}
