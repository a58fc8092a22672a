package tracking

import (
	"fmt"

	"github.com/linnemanlabs/go-core/xerrors"
)

var (
	// ErrAlreadyTracking is returned by Registry.Enable when the pair already has a job.
	ErrAlreadyTracking = xerrors.New("cabinet is already tracked")

	// ErrCabinetLimit is returned when an owner already has the maximum number of cabinets.
	ErrCabinetLimit = xerrors.New("cabinet limit reached")

	// ErrCabinetNotFound is returned when a name matches no cabinet of the owner.
	ErrCabinetNotFound = xerrors.New("cabinet not found")

	// ErrDuplicateCabinet is returned when a cabinet name is already taken.
	ErrDuplicateCabinet = xerrors.New("cabinet name already exists")

	// ErrEmptyCabinetName is returned for blank cabinet names.
	ErrEmptyCabinetName = xerrors.New("cabinet name is empty")

	// ErrCredentialRejected matches fetch errors caused by an invalid API key.
	ErrCredentialRejected = xerrors.New("credential rejected")
)

// FetchError is a non-success response from the campaign API.
type FetchError struct {
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("campaign api returned %d: %s", e.StatusCode, e.Body)
}

// Is reports 401 and 403 responses as ErrCredentialRejected.
func (e *FetchError) Is(target error) bool {
	return target == ErrCredentialRejected && (e.StatusCode == 401 || e.StatusCode == 403)
}
