package models

import "time"

const DefaultMonthlyQuota = 100

// APIUsage is the registration counter for one calendar month (UTC).
type APIUsage struct {
	Month             string // YYYY-MM
	RegistrationsUsed int
	QuotaTotal        int
}

func (u APIUsage) Remaining() int {
	if r := u.QuotaTotal - u.RegistrationsUsed; r > 0 {
		return r
	}
	return 0
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
