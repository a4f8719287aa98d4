package reconcile

import (
	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

var statusByCode = map[int]models.Status{
	0:  models.StatusNotFound,
	10: models.StatusInTransit,
	20: models.StatusExpired,
	30: models.StatusPickUp,
	35: models.StatusUndelivered,
	40: models.StatusDelivered,
	50: models.StatusAlert,
}

// MapStatus converts a provider status code. Unknown codes map to Alert and
// return ErrUnknownStatusCode so the caller can warn.
func MapStatus(code int) (models.Status, error) {
	if s, ok := statusByCode[code]; ok {
		return s, nil
	}
	return models.StatusAlert, errors.Wrapf(models.ErrUnknownStatusCode, "code %d", code)
}
