package seventeentrack

import (
	"fmt"

	"github.com/BearBump/packtrack/internal/integrations/provider"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/pkg/errors"
)

// 17track error codes we react to. Anything else is a permanent failure.
const (
	codeInvalidKey        = -18010002
	codeInternal          = -18010003
	codeKeyDisabled       = -18010004
	codeIPNotAllowed      = -18010005
	codeInvalidNumber     = -18010011
	codeAlreadyRegistered = -18010012
	codeInvalidFormat     = -18010013
	codeQuotaExceeded     = -18010018
)

func rejectReason(code int) provider.RejectReason {
	switch code {
	case codeAlreadyRegistered:
		return provider.ReasonAlreadyRegistered
	case codeInvalidNumber, codeInvalidFormat:
		return provider.ReasonInvalidNumber
	case codeQuotaExceeded:
		return provider.ReasonQuotaExceeded
	default:
		return provider.ReasonOther
	}
}

func classifyCode(code int, msg string) error {
	detail := fmt.Sprintf("17track code %d", code)
	if msg != "" {
		detail += ": " + msg
	}
	switch code {
	case codeInvalidKey, codeKeyDisabled, codeIPNotAllowed:
		return errors.Wrap(models.ErrConfiguration, detail)
	case codeQuotaExceeded:
		return errors.Wrap(models.ErrQuotaExceeded, detail)
	case codeInternal:
		return errors.Wrap(models.ErrTransientProvider, detail)
	default:
		return errors.New(detail)
	}
}
