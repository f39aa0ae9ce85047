package service

import "time"

// WorkCalendar tells the engine which days count as working days. Holiday
// data is owned by a surrounding system, so callers can plug in their own
// implementation; the default knows only about weekends.
type WorkCalendar interface {
	IsWeekend(date time.Time) bool
	IsHoliday(date time.Time) bool
}

// IsWorkingDay reports whether the date is neither a weekend nor a holiday
func IsWorkingDay(cal WorkCalendar, date time.Time) bool {
	return !cal.IsWeekend(date) && !cal.IsHoliday(date)
}

// WeekendCalendar treats Saturday and Sunday as week-off and knows a fixed
// set of holidays
type WeekendCalendar struct {
	holidays map[string]struct{}
}

const calendarDateLayout = "2006-01-02"

// NewWeekendCalendar creates a calendar with the given holiday dates
func NewWeekendCalendar(holidays []time.Time) *WeekendCalendar {
	m := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		m[h.Format(calendarDateLayout)] = struct{}{}
	}
	return &WeekendCalendar{holidays: m}
}

func (c *WeekendCalendar) IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (c *WeekendCalendar) IsHoliday(date time.Time) bool {
	_, ok := c.holidays[date.Format(calendarDateLayout)]
	return ok
}
