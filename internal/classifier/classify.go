package classifier

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/clubpay-backend/pkg/enums"
)

// Metadata keys written by the club's checkout pages.
const (
	KeyType          = "type"
	KeyMembership    = "membership"
	KeySponsorGameID = "sponsor_game_id"
	KeySeason        = "season"
	KeySponsorName   = "sponsor_name"
	KeyDependentIDs  = "dependent_ids"
	KeyInvoice       = "invoice"
	KeyInvoiceID     = "invoice_id"
)

// Classify validates metadata into an Intent. An explicit type discriminator
// wins and must carry its shape; otherwise the shape is inferred in the order
// dependent_ids, membership, sponsor_game_id, invoice reference.
func Classify(metadata map[string]string) Intent {
	if len(metadata) == 0 {
		return Unclassified{Reason: "no metadata"}
	}

	switch Kind(value(metadata, KeyType)) {
	case KindSponsorGame:
		return sponsorGame(metadata)
	case KindMembership:
		return membership(metadata, true)
	case KindSelfServiceCharges:
		return SelfServiceCharges{}
	case KindJuniorMembership:
		return juniorMembership(metadata)
	case KindDonation:
		return Donation{}
	}

	if value(metadata, KeyDependentIDs) != "" {
		return juniorMembership(metadata)
	}
	if m, ok := membership(metadata, false).(Membership); ok {
		return m
	}
	if value(metadata, KeySponsorGameID) != "" {
		return sponsorGame(metadata)
	}
	if value(metadata, KeyInvoice) != "" || value(metadata, KeyInvoiceID) != "" {
		return Membership{Renewal: true}
	}

	if raw := value(metadata, KeyType); raw != "" {
		return Unclassified{Reason: fmt.Sprintf("unknown type %q", raw)}
	}
	return Unclassified{Reason: "no recognised shape"}
}

func sponsorGame(metadata map[string]string) Intent {
	gameID := value(metadata, KeySponsorGameID)
	season := value(metadata, KeySeason)
	if gameID == "" || season == "" {
		return Unclassified{Reason: "sponsor_game requires sponsor_game_id and season"}
	}
	return SponsorGame{
		GameID:      gameID,
		Season:      season,
		SponsorName: value(metadata, KeySponsorName),
	}
}

// membership reads the membership key. An explicit discriminator tolerates a
// missing key (the type is resolved later) but never an invalid one.
func membership(metadata map[string]string, explicit bool) Intent {
	raw := value(metadata, KeyMembership)
	if raw == "" {
		if explicit {
			return Membership{}
		}
		return Unclassified{Reason: "membership key missing"}
	}
	membershipType, err := enums.ParseMembershipType(raw)
	if err != nil {
		return Unclassified{Reason: err.Error()}
	}
	return Membership{Type: membershipType}
}

func juniorMembership(metadata map[string]string) Intent {
	ids, err := ParseDependentIDs(value(metadata, KeyDependentIDs))
	if err != nil {
		return Unclassified{Reason: err.Error()}
	}
	if len(ids) == 0 {
		return Unclassified{Reason: "junior_membership requires dependent_ids"}
	}
	return JuniorMembership{DependentIDs: ids}
}

// ParseDependentIDs splits a comma separated list of dependent UUIDs,
// dropping blanks and duplicates.
func ParseDependentIDs(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	seen := map[uuid.UUID]struct{}{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid dependent id %q", part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func value(metadata map[string]string, key string) string {
	return strings.TrimSpace(metadata[key])
}
