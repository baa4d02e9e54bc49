package enums

import (
	"fmt"
	"strings"
)

// ChargeSource records which path wrote a ledger row.
type ChargeSource string

const (
	ChargeSourceAdmin            ChargeSource = "admin"
	ChargeSourceWebhook          ChargeSource = "webhook"
	ChargeSourceHistoricalImport ChargeSource = "historical_import"
	ChargeSourceSelfService      ChargeSource = "self_service"
)

var validChargeSources = []ChargeSource{
	ChargeSourceAdmin,
	ChargeSourceWebhook,
	ChargeSourceHistoricalImport,
	ChargeSourceSelfService,
}

// String implements fmt.Stringer.
func (c ChargeSource) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c ChargeSource) IsValid() bool {
	for _, candidate := range validChargeSources {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChargeSource converts raw input into a ChargeSource.
func ParseChargeSource(value string) (ChargeSource, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validChargeSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge source %q", value)
}
