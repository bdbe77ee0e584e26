package dates

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time component. It marshals as
// "YYYY-MM-DD", which is also the form used in read-model storage keys.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func New(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func Today() Date {
	return FromTime(time.Now())
}

// FromEpochDays converts a "days since 1970-01-01" value, the wire format
// used by the core-db change topics for date columns.
func FromEpochDays(days int64) Date {
	return FromTime(time.Unix(0, 0).UTC().AddDate(0, 0, int(days)))
}

func Parse(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// ParseCompact parses the YYYYMMDD form accepted on the command line.
func ParseCompact(s string) (Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

func (d Date) Equal(other Date) bool {
	return d == other
}

func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date JSON: %s", s)
	}
	parsed, err := Parse(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Calendar answers business-day questions. Weekends are always closed;
// additional closures come from the configured holiday list.
type Calendar struct {
	holidays map[Date]struct{}
}

func NewCalendar(holidays []Date) *Calendar {
	c := &Calendar{holidays: make(map[Date]struct{}, len(holidays))}
	for _, h := range holidays {
		c.holidays[h] = struct{}{}
	}
	return c
}

func (c *Calendar) IsBusinessDay(d Date) bool {
	switch d.Time().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[d]
	return !holiday
}

// NextBusinessDay returns the first business day strictly after d.
func (c *Calendar) NextBusinessDay(d Date) Date {
	for {
		d = d.AddDays(1)
		if c.IsBusinessDay(d) {
			return d
		}
	}
}

// PreviousBusinessDay returns the last business day strictly before d.
func (c *Calendar) PreviousBusinessDay(d Date) Date {
	for {
		d = d.AddDays(-1)
		if c.IsBusinessDay(d) {
			return d
		}
	}
}

// CurrentBusinessDay returns d if it is a business day, else the previous one.
func (c *Calendar) CurrentBusinessDay(d Date) Date {
	if c.IsBusinessDay(d) {
		return d
	}
	return c.PreviousBusinessDay(d)
}
