package ledger

import (
	"errors"

	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

// publicChargeMessage is the only text admins see for rejected mutations.
const publicChargeMessage = "charge not found or already settled"

var (
	ErrChargeNotFound = errors.New("charge not found")
	ErrAlreadySettled = errors.New("charge already settled")
	ErrAlreadyDeleted = errors.New("charge already deleted")
)

func chargeNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrChargeNotFound, publicChargeMessage)
}

func alreadySettled() error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrAlreadySettled, publicChargeMessage)
}

func alreadyDeleted() error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrAlreadyDeleted, publicChargeMessage)
}
