package stripewebhook

import (
	"context"
	"strings"
)

// customerEmail resolves the payer's email from the Stripe customer, falling
// back to the email captured on the paid object. A deleted customer is
// always fatal; so is ending up with no email at all.
func (s *Service) customerEmail(ctx context.Context, customerID, fallback string) (string, error) {
	fallback = strings.TrimSpace(fallback)
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		if fallback == "" {
			return "", missingCustomer("payment has no customer")
		}
		return fallback, nil
	}

	customer, err := s.gateway.Customer(ctx, customerID)
	if err != nil {
		if isNotFound(err) {
			return "", missingCustomer("customer " + customerID + " not found")
		}
		return "", err
	}
	if customer.Deleted {
		return "", missingCustomer("customer " + customerID + " is deleted")
	}
	if email := strings.TrimSpace(customer.Email); email != "" {
		return email, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", missingCustomer("customer " + customerID + " has no email")
}
