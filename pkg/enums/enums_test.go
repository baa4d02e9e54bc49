package enums

import "testing"

func TestParseChargeTypeNormalizes(t *testing.T) {
	got, err := ParseChargeType("  Junior_Membership ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ChargeTypeJuniorMembership {
		t.Fatalf("expected junior_membership, got %q", got)
	}
	if _, err := ParseChargeType("subscription"); err == nil {
		t.Fatal("expected unknown charge type to fail")
	}
}

func TestParseMembershipType(t *testing.T) {
	for _, raw := range []string{"senior_player", "social", "junior"} {
		if _, err := ParseMembershipType(raw); err != nil {
			t.Fatalf("expected %q to parse: %v", raw, err)
		}
	}
	if MembershipType("family").IsValid() {
		t.Fatal("family is not a membership type")
	}
}

func TestChargeSourceAndRole(t *testing.T) {
	if !ChargeSourceHistoricalImport.IsValid() {
		t.Fatal("historical_import should be valid")
	}
	if _, err := ParseChargeSource("stripe"); err == nil {
		t.Fatal("expected unknown source to fail")
	}
	if _, err := ParseStaffRole("Admin"); err == nil {
		t.Fatal("staff roles are case sensitive")
	}
}

func TestChargeStatusesOrdered(t *testing.T) {
	if ChargeStatuses[0] != ChargeStatusDeleted || ChargeStatuses[len(ChargeStatuses)-1] != ChargeStatusUnpaid {
		t.Fatalf("unexpected precedence order %v", ChargeStatuses)
	}
}
