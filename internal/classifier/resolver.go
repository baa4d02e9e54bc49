package classifier

import (
	"fmt"
	"strings"
)

// Precedence picks which metadata level wins on renewals.
type Precedence string

const (
	PrecedenceInvoiceFirst      Precedence = "invoice_first"
	PrecedenceSubscriptionFirst Precedence = "subscription_first"
)

// Source names the metadata level a resolution came from.
type Source string

const (
	SourceInvoice      Source = "invoice"
	SourceSubscription Source = "subscription"
	SourceNone         Source = "none"
)

// Resolution is the merged view of invoice and subscription metadata.
type Resolution struct {
	Intent Intent
	Source Source
	// Conflict is set when both levels classified to different intents.
	Conflict bool
}

// Resolver merges invoice-level and subscription-level metadata.
type Resolver struct {
	precedence Precedence
}

// NewResolver validates the configured precedence. Blank means invoice_first.
func NewResolver(precedence string) (Resolver, error) {
	switch p := Precedence(strings.ToLower(strings.TrimSpace(precedence))); p {
	case "", PrecedenceInvoiceFirst:
		return Resolver{precedence: PrecedenceInvoiceFirst}, nil
	case PrecedenceSubscriptionFirst:
		return Resolver{precedence: p}, nil
	default:
		return Resolver{}, fmt.Errorf("unknown classifier precedence %q", precedence)
	}
}

// Precedence returns the active policy.
func (r Resolver) Precedence() Precedence {
	if r.precedence == "" {
		return PrecedenceInvoiceFirst
	}
	return r.precedence
}

// Resolve classifies both levels. The preferred level wins unless it is
// Unclassified; a membership without a type borrows the other level's type.
func (r Resolver) Resolve(invoiceMetadata, subscriptionMetadata map[string]string) Resolution {
	primary, secondary := Classify(invoiceMetadata), Classify(subscriptionMetadata)
	primarySource, secondarySource := SourceInvoice, SourceSubscription
	if r.Precedence() == PrecedenceSubscriptionFirst {
		primary, secondary = secondary, primary
		primarySource, secondarySource = secondarySource, primarySource
	}

	conflict := disagree(primary, secondary)

	switch {
	case primary.Kind() != KindUnclassified:
		if m, ok := primary.(Membership); ok && m.Type == "" {
			if other, ok := secondary.(Membership); ok {
				m.Type = other.Type
				primary = m
			}
		}
		return Resolution{Intent: primary, Source: primarySource, Conflict: conflict}
	case secondary.Kind() != KindUnclassified:
		return Resolution{Intent: secondary, Source: secondarySource, Conflict: conflict}
	default:
		return Resolution{Intent: primary, Source: SourceNone}
	}
}

func disagree(a, b Intent) bool {
	if a.Kind() == KindUnclassified || b.Kind() == KindUnclassified {
		return false
	}
	if a.Kind() != b.Kind() {
		return true
	}
	am, aok := a.(Membership)
	bm, bok := b.(Membership)
	return aok && bok && am.Type != "" && bm.Type != "" && am.Type != bm.Type
}
