package stripewebhook

import (
	"errors"

	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

// ErrMissingOrDeletedCustomer is fatal for the event: the delivery fails and
// Stripe retries it later.
var ErrMissingOrDeletedCustomer = errors.New("stripe customer missing, deleted or without email")

func missingCustomer(detail string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, ErrMissingOrDeletedCustomer, detail)
}
