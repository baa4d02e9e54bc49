package enums

import "fmt"

// ChargeStatus is derived from a charge's timestamps and is never stored.
type ChargeStatus string

const (
	ChargeStatusDeleted   ChargeStatus = "deleted"
	ChargeStatusPaid      ChargeStatus = "paid"
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusAbandoned ChargeStatus = "abandoned"
	ChargeStatusUnpaid    ChargeStatus = "unpaid"
)

// ChargeStatuses lists every bucket in precedence order.
var ChargeStatuses = []ChargeStatus{
	ChargeStatusDeleted,
	ChargeStatusPaid,
	ChargeStatusPending,
	ChargeStatusAbandoned,
	ChargeStatusUnpaid,
}

// String implements fmt.Stringer.
func (c ChargeStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ChargeStatus) IsValid() bool {
	for _, candidate := range ChargeStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChargeStatus converts raw input into a ChargeStatus.
func ParseChargeStatus(value string) (ChargeStatus, error) {
	for _, candidate := range ChargeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge status %q", value)
}
