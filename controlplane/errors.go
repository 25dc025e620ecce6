package controlplane

import "errors"

var (
	// ErrProviderUnavailable indicates the policy source could not be reached.
	ErrProviderUnavailable = errors.New("nodecall: policy provider unavailable")
	// ErrPolicyNotFound indicates the source has no policy for the operation.
	ErrPolicyNotFound = errors.New("nodecall: policy not found")
	// ErrPolicyFetchFailed indicates a source failure other than unavailability.
	ErrPolicyFetchFailed = errors.New("nodecall: policy fetch failed")
)
