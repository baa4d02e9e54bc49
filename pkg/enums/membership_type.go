package enums

import (
	"fmt"
	"strings"
)

// MembershipType is the category a membership row covers.
type MembershipType string

const (
	MembershipTypeSeniorPlayer MembershipType = "senior_player"
	MembershipTypeSocial       MembershipType = "social"
	MembershipTypeJunior       MembershipType = "junior"
)

var validMembershipTypes = []MembershipType{
	MembershipTypeSeniorPlayer,
	MembershipTypeSocial,
	MembershipTypeJunior,
}

// String implements fmt.Stringer.
func (m MembershipType) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m MembershipType) IsValid() bool {
	for _, candidate := range validMembershipTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMembershipType converts raw input into a MembershipType.
func ParseMembershipType(value string) (MembershipType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validMembershipTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership type %q", value)
}
