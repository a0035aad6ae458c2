package domain

// Pattern is a delivery classification code as published by the sort-pattern service.
type Pattern string

const (
	// Postal codes delivered on X days.
	PatternX Pattern = "X"
	// Postal codes delivered on Y days.
	PatternY Pattern = "Y"
	// PatternEveryDay marks postal codes delivered on every non-holiday day.
	PatternEveryDay Pattern = "S"
	// PatternHoliday marks a day without delivery (weekend or public holiday).
	PatternHoliday Pattern = "H"
)

// IsHoliday reports whether the day pattern means no delivery at all.
func (p Pattern) IsHoliday() bool {
	return p == PatternHoliday
}

// DeliversOn reports whether a postal code with pattern p receives mail on a day
// classified as day.
func (p Pattern) DeliversOn(day Pattern) bool {
	if day == "" || day.IsHoliday() {
		return false
	}
	return p == PatternEveryDay || p == day
}

// DayRecord is a single day of the sort-pattern calendar.
// Fields are kept as received so malformed records can be detected downstream.
type DayRecord struct {
	Date    string  `json:"plannedDate"`
	Pattern Pattern `json:"patternName"`
}

// Valid reports whether the record carries both a parseable date and a pattern.
func (r DayRecord) Valid() bool {
	if r.Pattern == "" {
		return false
	}
	_, err := ParseDate(r.Date)
	return err == nil
}
