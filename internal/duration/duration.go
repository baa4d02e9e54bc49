// Package duration turns purchased line items into calendar spans.
//
// Durations are calendar-relative: one month added to 15 March lands on
// 15 April regardless of how many days March has. Adding months to a day that
// does not exist in the target month clamps to that month's last day.
package duration

import "time"

// Interval is the recurring billing unit of a price.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// oneTimeMonths is what a one-off membership purchase is worth.
const oneTimeMonths = 12

// anchor is where contributions are accumulated before taking the delta.
var anchor = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// LineItem is one purchased price.
type LineItem struct {
	Recurring     bool
	Interval      Interval
	IntervalCount int64
}

// Duration is a calendar span.
type Duration struct {
	Years  int `json:"years,omitempty"`
	Months int `json:"months,omitempty"`
	Days   int `json:"days,omitempty"`
}

func Months(n int) Duration { return Duration{Months: n} }
func Days(n int) Duration   { return Duration{Days: n} }
func Years(n int) Duration  { return Duration{Years: n} }

// IsZero reports whether d adds nothing.
func (d Duration) IsZero() bool {
	return d.Years == 0 && d.Months == 0 && d.Days == 0
}

// AddTo applies years and months first (clamping the day of month) and then
// days.
func (d Duration) AddTo(t time.Time) time.Time {
	return addMonths(t, d.Years*12+d.Months).AddDate(0, 0, d.Days)
}

// ForLineItem returns the contribution of a single line item.
func ForLineItem(item LineItem) Duration {
	if !item.Recurring {
		return Months(oneTimeMonths)
	}
	count := int(item.IntervalCount)
	if count <= 0 {
		count = 1
	}
	switch item.Interval {
	case IntervalDay:
		return Days(count)
	case IntervalWeek:
		return Days(7 * count)
	case IntervalMonth:
		return Months(count)
	case IntervalYear:
		return Years(count)
	default:
		return Duration{}
	}
}

// Sum combines the contributions of items by applying them one after another
// to a fixed anchor and measuring the calendar distance travelled.
func Sum(items ...LineItem) Duration {
	end := anchor
	for _, item := range items {
		end = ForLineItem(item).AddTo(end)
	}
	return Between(anchor, end)
}

// Between is the calendar distance from one instant to a later one, expressed
// in whole months plus remaining days. It returns zero when to is not after
// from.
func Between(from, to time.Time) Duration {
	from = dateOf(from)
	to = dateOf(to)
	if !to.After(from) {
		return Duration{}
	}

	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	for months > 0 && addMonths(from, months).After(to) {
		months--
	}
	days := int(to.Sub(addMonths(from, months)).Hours() / 24)
	return Duration{Months: months, Days: days}
}

func addMonths(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
