// Package classifier validates Stripe metadata into a closed set of payment
// intents. Raw metadata maps stop here; callers switch over the returned
// Intent.
package classifier

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// Kind tags each Intent variant.
type Kind string

const (
	KindSponsorGame        Kind = "sponsor_game"
	KindMembership         Kind = "membership"
	KindSelfServiceCharges Kind = "self_service_charges"
	KindJuniorMembership   Kind = "junior_membership"
	KindDonation           Kind = "donation"
	KindUnclassified       Kind = "unclassified"
)

// Intent is one of SponsorGame, Membership, SelfServiceCharges,
// JuniorMembership, Donation or Unclassified.
type Intent interface {
	Kind() Kind
	isIntent()
}

// SponsorGame is a company paying to sponsor a fixture.
type SponsorGame struct {
	GameID      string
	Season      string
	SponsorName string
}

// Membership buys or renews an adult membership. Type is empty when the
// metadata only referenced an invoice and the renewal type still has to be
// resolved.
type Membership struct {
	Type    enums.MembershipType
	Renewal bool
}

// SelfServiceCharges settles charges already on the member's ledger.
type SelfServiceCharges struct{}

// JuniorMembership pays for the listed dependents.
type JuniorMembership struct {
	DependentIDs []uuid.UUID
}

// Donation is a gift with no ledger side effects beyond the charge.
type Donation struct{}

// Unclassified means nothing matched; callers log it and move on.
type Unclassified struct {
	Reason string
}

func (SponsorGame) Kind() Kind        { return KindSponsorGame }
func (Membership) Kind() Kind         { return KindMembership }
func (SelfServiceCharges) Kind() Kind { return KindSelfServiceCharges }
func (JuniorMembership) Kind() Kind   { return KindJuniorMembership }
func (Donation) Kind() Kind           { return KindDonation }
func (Unclassified) Kind() Kind       { return KindUnclassified }

func (SponsorGame) isIntent()        {}
func (Membership) isIntent()         {}
func (SelfServiceCharges) isIntent() {}
func (JuniorMembership) isIntent()   {}
func (Donation) isIntent()           {}
func (Unclassified) isIntent()       {}

// ChargeType maps an intent to the ledger charge type it produces.
// Unclassified payments are recorded as manual charges.
func ChargeType(intent Intent) enums.ChargeType {
	switch intent.(type) {
	case SponsorGame:
		return enums.ChargeTypeSponsorship
	case Membership:
		return enums.ChargeTypeMembership
	case JuniorMembership:
		return enums.ChargeTypeJuniorMembership
	case Donation:
		return enums.ChargeTypeDonation
	default:
		return enums.ChargeTypeManual
	}
}
