package dates

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseAndString(t *testing.T) {
	d, err := Parse("2024-03-04")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if d.String() != "2024-03-04" {
		t.Errorf("String() = %q, want 2024-03-04", d.String())
	}
	if _, err := Parse("04/03/2024"); err == nil {
		t.Error("Parse should reject non-ISO input")
	}
}

func TestParseCompact(t *testing.T) {
	d, err := ParseCompact("20240304")
	if err != nil {
		t.Fatalf("ParseCompact returned error: %v", err)
	}
	if !d.Equal(New(2024, time.March, 4)) {
		t.Errorf("ParseCompact = %s, want 2024-03-04", d)
	}
}

func TestFromEpochDays(t *testing.T) {
	if d := FromEpochDays(0); !d.Equal(New(1970, time.January, 1)) {
		t.Errorf("day 0 = %s, want 1970-01-01", d)
	}
	if d := FromEpochDays(19786); !d.Equal(New(2024, time.March, 4)) {
		t.Errorf("day 19786 = %s, want 2024-03-04", d)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := New(2024, time.March, 4)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	if string(data) != `"2024-03-04"` {
		t.Errorf("Marshal = %s, want quoted ISO date", data)
	}
	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip = %s, want %s", back, d)
	}
}

func TestBusinessDaysSkipWeekends(t *testing.T) {
	c := NewCalendar(nil)
	friday := New(2024, time.March, 1)
	monday := New(2024, time.March, 4)

	if got := c.NextBusinessDay(friday); !got.Equal(monday) {
		t.Errorf("NextBusinessDay(friday) = %s, want %s", got, monday)
	}
	if got := c.PreviousBusinessDay(monday); !got.Equal(friday) {
		t.Errorf("PreviousBusinessDay(monday) = %s, want %s", got, friday)
	}
	saturday := New(2024, time.March, 2)
	if got := c.CurrentBusinessDay(saturday); !got.Equal(friday) {
		t.Errorf("CurrentBusinessDay(saturday) = %s, want %s", got, friday)
	}
	if got := c.CurrentBusinessDay(monday); !got.Equal(monday) {
		t.Errorf("CurrentBusinessDay(monday) = %s, want %s", got, monday)
	}
}

func TestBusinessDaysSkipHolidays(t *testing.T) {
	goodFriday := New(2024, time.March, 29)
	c := NewCalendar([]Date{goodFriday})
	thursday := New(2024, time.March, 28)
	nextMonday := New(2024, time.April, 1)

	if c.IsBusinessDay(goodFriday) {
		t.Error("holiday should not be a business day")
	}
	if got := c.NextBusinessDay(thursday); !got.Equal(nextMonday) {
		t.Errorf("NextBusinessDay(thursday) = %s, want %s", got, nextMonday)
	}
}
