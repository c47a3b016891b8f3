// Package domain contains domain models and business logic errors.
package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when trying to create a resource that already exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidArgument is returned when an invalid argument is provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientCapacity is returned when a host's eligible datastores
	// cannot cover a VM's requirement. Placement treats it as non-fatal and
	// skips the host.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrNoEligibleDatastore is returned when the pattern or buffer filter
	// removes every candidate. Callers treat it like insufficient capacity.
	ErrNoEligibleDatastore = errors.New("no eligible datastore")

	// ErrProvisioningFailed is returned when the hypervisor rejects a volume
	// create or destroy call.
	ErrProvisioningFailed = errors.New("provisioning failed")

	// ErrConflict is returned when an operation does not match the plan's
	// current lifecycle status.
	ErrConflict = errors.New("conflict with current state")
)
