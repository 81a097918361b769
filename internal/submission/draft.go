package submission

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the stored and accepted date format.
	DateLayout = "2006-01-02"
	// TimeLayout is the stored and accepted time-of-day format.
	TimeLayout = "15:04"
)

var (
	// ErrTimeInPast warns that the picked time is earlier than now on today's date. The draft is left
	// unchanged.
	ErrTimeInPast = errors.New("please select a future time for today")
	// ErrDateInPast rejects dates before today.
	ErrDateInPast = errors.New("please select today or a later date")
)

// Draft holds the date and time picked for a new activity. The two values are picked independently;
// picking today's date drops a time that has already passed and picking a past time for today is
// refused. Comparison is at minute granularity.
type Draft struct {
	now  func() time.Time
	date string
	time string
}

// NewDraft constructs an empty Draft. A nil clock uses time.Now.
func NewDraft(now func() time.Time) *Draft {
	if now == nil {
		now = time.Now
	}
	return &Draft{now: now}
}

// Date returns the picked date or "".
func (d *Draft) Date() string { return d.date }

// Time returns the picked time or "".
func (d *Draft) Time() string { return d.time }

// PickDate sets the date. It reports whether a previously picked time was cleared.
func (d *Draft) PickDate(value string) (cleared bool, err error) {
	value = strings.TrimSpace(value)
	if _, err := time.Parse(DateLayout, value); err != nil {
		return false, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	if value < today(d.now()) {
		return false, ErrDateInPast
	}
	d.date = value
	if d.time != "" && d.passed(d.date, d.time) {
		d.time = ""
		return true, nil
	}
	return false, nil
}

// PickTime sets the time unless it is already past on today's date.
func (d *Draft) PickTime(value string) error {
	value = strings.TrimSpace(value)
	if _, err := time.Parse(TimeLayout, value); err != nil {
		return fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	if d.date != "" && d.passed(d.date, value) {
		return ErrTimeInPast
	}
	d.time = value
	return nil
}

// passed reports whether date+clock is earlier than the current minute.
func (d *Draft) passed(date, clock string) bool {
	now := d.now()
	at, err := combine(date, clock, now.Location())
	if err != nil {
		return false
	}
	return at.Before(now.Truncate(time.Minute))
}

// combine parses date and clock in loc.
func combine(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
}

// today formats now's calendar date. DateLayout strings order lexically.
func today(now time.Time) string {
	return now.Format(DateLayout)
}
