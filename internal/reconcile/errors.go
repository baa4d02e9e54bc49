package reconcile

import (
	"errors"

	pkgerrors "github.com/angelmondragon/clubpay-backend/pkg/errors"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("reconciliation already running")

func runInProgress() error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrRunInProgress, "reconciliation already running")
}
