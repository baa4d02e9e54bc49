package memberships

import (
	"errors"

	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

var (
	// ErrNoMemberWithEmail is fatal to event handlers.
	ErrNoMemberWithEmail = errors.New("no member with email")
	ErrDependentNotFound = errors.New("dependent not found")
	errContended         = errors.New("membership update contended")
)

func noMemberWithEmail() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrNoMemberWithEmail, "no member matches the payment email")
}

func dependentNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrDependentNotFound, "dependent not found")
}
