package markethours

import (
	"fmt"
	"time"
)

// Session status labels returned by Status. These are the six states the
// Trading Bot and dashboards classify the current moment into — finer
// grained than the binary IsMarketOpen check used by the market-data
// pipeline.
const (
	StatusOpen              = "OPEN"
	StatusPreOpen           = "PRE-OPEN"
	StatusPostMarketClosed  = "POST-MARKET CLOSED"
	StatusClosedWeekend     = "CLOSED (WEEKEND)"
	StatusClosedHoliday     = "CLOSED (HOLIDAY)"
	StatusClosedAfterHours  = "CLOSED (AFTER-HOURS)"

	preOpenHour   = 9
	preOpenMinute = 0
	postCloseHour = 16
	postCloseMinute = 0
)

// Status classifies t (any timezone) into one of the six session states.
// Weekend and holiday checks take priority over time-of-day, matching how
// the exchange itself would describe "why is the market closed right now".
func Status(t time.Time) string {
	ist := t.In(IST)
	wd := ist.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return StatusClosedWeekend
	}
	if IsHoliday(ist) {
		return StatusClosedHoliday
	}

	hm := ist.Hour()*60 + ist.Minute()
	preOpenStart := preOpenHour*60 + preOpenMinute
	openStart := OpenHour*60 + OpenMinute
	closeEnd := CloseHour*60 + CloseMinute
	postCloseEnd := postCloseHour*60 + postCloseMinute

	switch {
	case hm >= preOpenStart && hm < openStart:
		return StatusPreOpen
	case hm >= openStart && hm < closeEnd:
		return StatusOpen
	case hm >= closeEnd && hm < postCloseEnd:
		return StatusPostMarketClosed
	default:
		return StatusClosedAfterHours
	}
}

// ShouldStreamData reports whether the Tick Hub should hold (or open) an
// upstream connection at time t: true during PRE-OPEN and OPEN only.
func ShouldStreamData(t time.Time) bool {
	s := Status(t)
	return s == StatusPreOpen || s == StatusOpen
}

// CheckHolidayStaleness reports whether the compiled-in holiday calendar is
// at risk of being out of date: if today (IST) falls in a year other than
// the one the calendar was built for, or within its last month, the
// calendar needs refreshing before it can be trusted for NextOpen walks.
// Returns (stale bool, reason string).
func CheckHolidayStaleness() (bool, string) {
	return checkHolidayStalenessAt(time.Now())
}

func checkHolidayStalenessAt(now time.Time) (bool, string) {
	ist := now.In(IST)
	if ist.Year() != calendarYear {
		return true, fmt.Sprintf("holiday calendar covers %d but today is %d", calendarYear, ist.Year())
	}
	yearEnd := time.Date(calendarYear, time.December, 31, 23, 59, 59, 0, IST)
	if yearEnd.Sub(ist) < 31*24*time.Hour {
		return true, fmt.Sprintf("holiday calendar for %d expires within 31 days", calendarYear)
	}
	return false, ""
}
