package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Date is a calendar day with no time zone attached. Slots are scheduled in
// the business's local time and never converted.
type Date struct {
	civil.Date
}

// Clock is a time of day with no date or zone.
type Clock struct {
	civil.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{civil.Date{Year: year, Month: month, Day: day}}
}

func NewClock(hour, minute int) Clock {
	return Clock{civil.Time{Hour: hour, Minute: minute}}
}

func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Date{d}, nil
}

// ParseClock accepts HH:MM and HH:MM:SS. Clocks are stored at second
// precision, so fractional seconds are rejected rather than truncated.
// The last slot of a day ends by 23:59:59; 24:00 is not a time of day.
func ParseClock(s string) (Clock, error) {
	in := strings.TrimSpace(s)
	if len(in) == len("15:04") {
		in += ":00"
	}
	if strings.HasPrefix(in, "24:") {
		return Clock{}, fmt.Errorf("invalid time %q: latest time of day is 23:59:59", s)
	}
	t, err := civil.ParseTime(in)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM or HH:MM:SS", s)
	}
	if t.Nanosecond != 0 {
		return Clock{}, fmt.Errorf("invalid time %q: fractional seconds are not supported", s)
	}
	return Clock{t}, nil
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (c Clock) Compare(other Clock) int {
	a, b := c.duration(), other.duration()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (c Clock) Equal(other Clock) bool {
	return c.Compare(other) == 0
}

// Sub returns c-other as a duration.
func (c Clock) Sub(other Clock) time.Duration {
	return c.duration() - other.duration()
}

// duration is the offset from midnight at the second precision clocks are
// stored with.
func (c Clock) duration() time.Duration {
	return time.Duration(c.Hour)*time.Hour +
		time.Duration(c.Minute)*time.Minute +
		time.Duration(c.Second)*time.Second
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.Date = civil.DateOf(v)
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("domain: cannot scan %T into Date", src)
	}
}

func (d *Date) parse(s string) error {
	// Some drivers render DATE columns as full timestamps.
	if len(s) > len("2006-01-02") {
		s = s[:len("2006-01-02")]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		c.Time = civil.TimeOf(v.Truncate(time.Second))
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	case nil:
		*c = Clock{}
		return nil
	default:
		return fmt.Errorf("domain: cannot scan %T into Clock", src)
	}
}

func (c *Clock) parse(s string) error {
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	return d.parse(string(b))
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	return c.parse(string(b))
}
