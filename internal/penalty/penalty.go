// Package penalty computes late fees for overdue rent obligations.
//
// The policy is 5% of the base amount per started week overdue. Partial
// weeks count as full weeks, so one day late already accrues one week.
package penalty

import "time"

// RatePercentPerWeek is the late fee accrual rate.
const RatePercentPerWeek = 5

// WeeksOverdue returns the number of started weeks between the due date
// and now. Both instants are aligned to midnight UTC before comparing,
// so the count only advances at day boundaries. It returns 0 when now
// is on or before the due date.
func WeeksOverdue(dueDate, now time.Time) int64 {
	due := midnight(dueDate)
	today := midnight(now)
	if !today.After(due) {
		return 0
	}
	days := int64(today.Sub(due) / (24 * time.Hour))
	return (days + 6) / 7
}

// Accrued returns the penalty owed on amount as of now, rounded to the
// nearest minor unit. Amounts are in minor currency units.
func Accrued(amount int64, dueDate, now time.Time) int64 {
	weeks := WeeksOverdue(dueDate, now)
	if weeks == 0 || amount <= 0 {
		return 0
	}
	return (amount*RatePercentPerWeek*weeks + 50) / 100
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
