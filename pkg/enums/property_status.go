package enums

import "slices"

// PropertyStatus reports whether a listing accepts new bookings.
type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "active"
	PropertyStatusInactive PropertyStatus = "inactive"
)

var validPropertyStatuses = []PropertyStatus{
	PropertyStatusActive,
	PropertyStatusInactive,
}

func (s PropertyStatus) String() string {
	return string(s)
}

func (s PropertyStatus) IsValid() bool {
	return slices.Contains(validPropertyStatuses, s)
}

// ParsePropertyStatus converts raw input into a PropertyStatus.
func ParsePropertyStatus(value string) (PropertyStatus, error) {
	return parse(validPropertyStatuses, value, "property status")
}
