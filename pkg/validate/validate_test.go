package validate

import (
	"regexp"
	"testing"
)

func TestFieldReturnsMatchUnchanged(t *testing.T) {
	got := Field("2021OPA-0281", CaseNum, "Invalid case number")
	if got != "2021OPA-0281" {
		t.Fatalf("expected case number returned unchanged, got %q", got)
	}
}

func TestFieldSubstringDoesNotMatch(t *testing.T) {
	// Anchored at both ends: embedded matches must fall back to the default.
	got := Field("see 2021OPA-0281 for details", CaseNum, "Invalid case number")
	if got != "Invalid case number" {
		t.Fatalf("expected fallback for partial match, got %q", got)
	}
}

func TestFieldPatterns(t *testing.T) {
	cases := []struct {
		name     string
		value    string
		pattern  *regexp.Regexp
		fallback string
		want     string
	}{
		{"serial ok", "1595", Serial, "Unknown", "1595"},
		{"serial too long", "159500", Serial, "Unknown", "Unknown"},
		{"serial not numeric", "15a5", Serial, "Unknown", "Unknown"},
		{"free text ok", "Professionalism", FreeText, "Unknown", "Professionalism"},
		{"free text with comma", "Use of Force - Type 2, Reporting", FreeText, "Unknown", "Use of Force - Type 2, Reporting"},
		{"free text empty", "", FreeText, "Unknown", "Unknown"},
		{"timestamp ok", "2022-05-03T00:00:00.000", Timestamp, "1970-01-01T00:00:00", "2022-05-03T00:00:00.000"},
		{"timestamp no millis", "2022-05-03T00:00:00", Timestamp, "1970-01-01T00:00:00", "2022-05-03T00:00:00"},
		{"timestamp garbage", "yesterday", Timestamp, "1970-01-01T00:00:00", "1970-01-01T00:00:00"},
		{"ccs disposition partial", "Partially Sustained", CCSDisposition, "Unknown", "Partially Sustained"},
		{"ccs disposition none", "No Allegations Sustained", CCSDisposition, "Unknown", "No Allegations Sustained"},
		{"ccs disposition dash", "-", CCSDisposition, "Unknown", "-"},
		{"ccs disposition other", "Closed", CCSDisposition, "Unknown", "Unknown"},
		{"ccs url ok", "https://www.seattle.gov/Documents/Departments/OPA/ClosedCaseSummaries/2021OPA-0281ccs032922.pdf", CCSURL, "", "https://www.seattle.gov/Documents/Departments/OPA/ClosedCaseSummaries/2021OPA-0281ccs032922.pdf"},
		{"ccs url wrong host", "https://example.com/2021OPA-0281ccs032922.pdf", CCSURL, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Field(tc.value, tc.pattern, tc.fallback)
			if got != tc.want {
				t.Fatalf("Field(%q) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}
