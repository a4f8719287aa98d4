package main

import (
	"errors"
	"strings"

	"github.com/BearBump/packtrack/config"
	"github.com/BearBump/packtrack/internal/carriers"
	"github.com/BearBump/packtrack/internal/lock"
	"github.com/BearBump/packtrack/internal/models"
)

// hint maps an error bucket to what the user can do about it.
// Order matters: ErrAlreadyTracked also matches ErrStoreIntegrity.
func hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, lock.ErrLocked):
		return "another packtrack run (cron check or watch) holds the lock; retry when it finishes"
	case errors.Is(err, lock.ErrLost):
		return "the lock was broken as stale by another run; check that only one watch is running"
	case errors.Is(err, models.ErrConfiguration):
		return "check the config file; the 17track API key comes from " + config.EnvAPIKey + " or tracker.api_key"
	case errors.Is(err, models.ErrQuotaExceeded):
		return "wait for next month's quota, or raise tracker.quota_total after upgrading the 17track plan"
	case errors.Is(err, models.ErrUnknownCarrier):
		return "known carriers: " + carrierKeys()
	case errors.Is(err, models.ErrInvalidTrackingNumber):
		return "check the tracking number; 17track rejected its format"
	case errors.Is(err, models.ErrTransientProvider):
		return "17track is unreachable or overloaded; try again in a few minutes"
	case errors.Is(err, models.ErrPackageNotFound):
		return "run `packtrack list --all` to see tracked numbers"
	case errors.Is(err, models.ErrPackageInactive):
		return "the package is not tracked anymore; `packtrack add` it again to resume"
	case errors.Is(err, models.ErrAlreadyTracked):
		return "the package is already being tracked; see `packtrack details`"
	case errors.Is(err, models.ErrStoreIntegrity):
		return "the database looks damaged; check " + config.EnvDBPath + " or restore a backup"
	}
	return ""
}

func carrierKeys() string {
	all := carriers.All()
	keys := make([]string, 0, len(all))
	for _, c := range all {
		keys = append(keys, string(c))
	}
	return strings.Join(keys, ", ")
}
