package models

import "github.com/pkg/errors"

// Error buckets. Callers wrap these with errors.Wrap and classify with errors.Is.
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrQuotaExceeded         = errors.New("registration quota exceeded")
	ErrInvalidTrackingNumber = errors.New("invalid tracking number")
	ErrTransientProvider     = errors.New("transient provider error")
	ErrUnknownStatusCode     = errors.New("unknown status code")
	ErrStoreIntegrity        = errors.New("store integrity error")
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrPackageInactive = errors.New("package is already inactive")
	ErrUnknownCarrier  = errors.New("unknown carrier")
	// ErrAlreadyTracked is a uniqueness violation, so it also matches ErrStoreIntegrity.
	ErrAlreadyTracked = errors.Wrap(ErrStoreIntegrity, "package is already being tracked")
)
