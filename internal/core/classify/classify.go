// Package classify decides which days of a sort-pattern calendar are delivery
// days for a given postal code.
package classify

import "github.com/vietddude/deliverycal/internal/core/domain"

// Classify returns the delivery days for a postal code with the given pattern.
//
// A day is included iff its pattern is not H and either the postal pattern is S
// or both patterns are equal. Records without a parseable date or a pattern are
// skipped. Output order follows input order.
func Classify(postal domain.Pattern, days []domain.DayRecord) []domain.Date {
	out := make([]domain.Date, 0, len(days))
	for _, day := range days {
		if day.Pattern == "" {
			continue
		}
		date, err := domain.ParseDate(day.Date)
		if err != nil {
			continue
		}
		if postal.DeliversOn(day.Pattern) {
			out = append(out, date)
		}
	}
	return out
}

// Summary counts the day patterns seen in a calendar, keyed by pattern.
// Malformed records are counted under the empty pattern.
func Summary(days []domain.DayRecord) map[domain.Pattern]int {
	counts := make(map[domain.Pattern]int)
	for _, day := range days {
		if !day.Valid() {
			counts[""]++
			continue
		}
		counts[day.Pattern]++
	}
	return counts
}
