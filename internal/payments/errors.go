package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

// ErrObjectNotFound reports that the processor has no object with the id.
var ErrObjectNotFound = errors.New("payment processor object not found")

// classify maps processor failures onto the service error codes. Missing
// objects are NOT_FOUND; everything else, timeouts included, is a retryable
// DEPENDENCY_ERROR.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, errors.Join(ErrObjectNotFound, err), op)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+": timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
