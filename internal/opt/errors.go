package opt

import "errors"

// Precondition violations. Infeasibility is never reported through these;
// infeasible moves carry an infinite cost instead.
var (
	ErrInvalidInstance   = errors.New("invalid instance")
	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownTechnician = errors.New("unknown technician")
	ErrNotInTour         = errors.New("node not in tour")
	ErrAlreadyVisited    = errors.New("node already visited")
	ErrTourEndpoint      = errors.New("tour endpoints cannot be moved")
	ErrFrozen            = errors.New("position is frozen")
	ErrInfeasibleMove    = errors.New("move is infeasible")
	ErrInconsistent      = errors.New("inconsistent solution")
)

// violation surfaces a precondition failure. Strict callers panic.
func violation(strict bool, err error) error {
	if strict && err != nil {
		panic(err)
	}
	return err
}
