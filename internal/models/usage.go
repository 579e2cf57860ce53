package models

import "time"

// DailyUsage is one day's admitted request count for a key
type DailyUsage struct {
	KeyID        string    `json:"key_id"`
	UsageDate    time.Time `json:"usage_date"`
	RequestCount int64     `json:"request_count"`
}

// UsageStats summarises consumption against the current limits
type UsageStats struct {
	Today            int64 `json:"today"`
	ThisMonth        int64 `json:"this_month"`
	DailyRemaining   int64 `json:"daily_remaining"`
	MonthlyRemaining int64 `json:"monthly_remaining"`
}

// QuotaStatus is the usage report returned to clients and admins
type QuotaStatus struct {
	KeyID  string      `json:"key_id"`
	Limits QuotaLimits `json:"limits"`
	Usage  UsageStats  `json:"usage"`
}

// NewUsageStats computes remaining allocations, floored at zero
func NewUsageStats(limits QuotaLimits, today, thisMonth int64) UsageStats {
	return UsageStats{
		Today:            today,
		ThisMonth:        thisMonth,
		DailyRemaining:   max(int64(limits.DailyQuota)-today, 0),
		MonthlyRemaining: max(int64(limits.MonthlyQuota)-thisMonth, 0),
	}
}

// RequestLog is one telemetry row for a request admitted by the metering pipeline
type RequestLog struct {
	KeyID     *string // nil for admin traffic
	Path      string
	Method    string
	Status    int
	LatencyMs int
	Timestamp time.Time
}

// DayStart returns the UTC calendar day containing t
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns [first day of t's month, first day of next month) in UTC
func MonthRange(t time.Time) (start, end time.Time) {
	y, m, _ := t.UTC().Date()
	start = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
