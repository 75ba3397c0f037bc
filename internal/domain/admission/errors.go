package admission

import "errors"

// Sentinel kinds for quota reservation. Stores return these from
// ReserveQuota without consuming quota.
var (
	ErrDailyLimitReached  = errors.New("daily publication limit reached")
	ErrHourlyLimitReached = errors.New("hourly publication limit reached")
)
