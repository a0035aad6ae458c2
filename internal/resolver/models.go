package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/vietddude/deliverycal/internal/core/domain"
	"github.com/vietddude/deliverycal/internal/infra/fetch"
)

// Postal code endpoint: {"data": [{"postalCode": "56632", "patternName": "X", ...}]}

type postalCodeEnvelope struct {
	Data *[]json.RawMessage `json:"data"`
}

// PostalCodeRecord is the part of a postal code record we rely on.
// The full upstream record is what gets cached.
type PostalCodeRecord struct {
	PostalCode  string         `json:"postalCode,omitempty"`
	PatternName domain.Pattern `json:"patternName"`
}

// parsePostalCode validates the postal code response and returns the first
// record both decoded and raw.
func parsePostalCode(p *fetch.Payload) (PostalCodeRecord, json.RawMessage, error) {
	fail := func(reason string, body string) (PostalCodeRecord, json.RawMessage, error) {
		return PostalCodeRecord{}, nil, &ResolutionError{Stage: StagePostalCode, Reason: reason, Body: body}
	}

	if !p.IsJSON() {
		return fail("body is not JSON", p.Raw)
	}

	var env postalCodeEnvelope
	if err := json.Unmarshal(p.JSON, &env); err != nil {
		return fail("expected an object envelope", string(p.JSON))
	}
	if env.Data == nil {
		return fail(`missing "data" list`, string(p.JSON))
	}
	if len(*env.Data) == 0 {
		return fail(`empty "data" list`, string(p.JSON))
	}

	raw := (*env.Data)[0]
	rec, err := decodePostalCodeRecord(raw)
	if err != nil {
		return fail(err.Error(), string(raw))
	}
	return rec, raw, nil
}

func decodePostalCodeRecord(raw json.RawMessage) (PostalCodeRecord, error) {
	var rec PostalCodeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return PostalCodeRecord{}, fmt.Errorf("record is not an object")
	}
	if rec.PatternName == "" {
		return PostalCodeRecord{}, fmt.Errorf(`record has no "patternName"`)
	}
	return rec, nil
}

// Sort pattern endpoint: [{"plannedDate": "2024-06-03", "patternName": "X"}, ...]

// dayRecordFields holds the fields of one sort pattern record undecoded, so a
// field of the wrong type spoils only its own record.
type dayRecordFields struct {
	Date    json.RawMessage `json:"plannedDate"`
	Pattern json.RawMessage `json:"patternName"`
}

// stringField returns the value of a JSON string, or "" for any other type.
func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// parseSortPatterns validates the sort pattern response and returns its
// records sorted by date with duplicates removed. Records missing a field, or
// carrying one with the wrong type, are kept; the classifier skips them.
func parseSortPatterns(p *fetch.Payload) ([]domain.DayRecord, int, error) {
	fail := func(reason string, body string) ([]domain.DayRecord, int, error) {
		return nil, 0, &ResolutionError{Stage: StageSortPatterns, Reason: reason, Body: body}
	}

	if !p.IsJSON() {
		return fail("body is not JSON", p.Raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(p.JSON, &items); err != nil || items == nil {
		return fail("expected a list of records", string(p.JSON))
	}

	records := make([]domain.DayRecord, 0, len(items))
	valid := 0
	for i, item := range items {
		if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
			return fail(fmt.Sprintf("record %d is not an object", i), string(item))
		}
		var raw dayRecordFields
		if err := json.Unmarshal(item, &raw); err != nil {
			return fail(fmt.Sprintf("record %d: %v", i, err), string(item))
		}
		rec := domain.DayRecord{
			Date:    stringField(raw.Date),
			Pattern: domain.Pattern(stringField(raw.Pattern)),
		}
		if rec.Valid() {
			valid++
		}
		records = append(records, rec)
	}
	if len(records) > 0 && valid == 0 {
		return fail(`no record has both "plannedDate" and "patternName"`, string(p.JSON))
	}

	sorted, dupes := normalizeDays(records)
	return sorted, dupes, nil
}

// normalizeDays sorts records ascending by date and keeps the first record of
// each date. It returns the number of dropped duplicates.
func normalizeDays(records []domain.DayRecord) ([]domain.DayRecord, int) {
	sorted := make([]domain.DayRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date < sorted[j].Date
	})

	out := sorted[:0]
	dupes := 0
	for _, rec := range sorted {
		if n := len(out); n > 0 && rec.Date != "" && rec.Date == out[n-1].Date {
			dupes++
			continue
		}
		out = append(out, rec)
	}
	return out, dupes
}
