package validate

import "regexp"

// Patterns for the untrusted fields the open-data sources return. Every
// pattern is anchored at both ends; a partial match is a mismatch.
var (
	CaseNum        = regexp.MustCompile(`^\d{4}OPA-\d{4}$`)
	Serial         = regexp.MustCompile(`^\d{1,4}$`)
	FreeText       = regexp.MustCompile(`^[\w \-,]{1,255}$`)
	Timestamp      = regexp.MustCompile(`^\d{4}(-\d{2}){2}T\d{2}(:\d{2}){2}(\.\d{3})?$`)
	CCSDisposition = regexp.MustCompile(`^((No|All) Allegations Sustained|Partially Sustained|-)$`)
	CCSURL         = regexp.MustCompile(`^https://www\.seattle\.gov/Documents/Departments/OPA/ClosedCaseSummaries/\d{4}OPA-\d{4}ccs\d{4,10}\.pdf$`)
)

// Field returns value if it fully matches pattern, otherwise fallback.
// Malformed external data degrades to a sentinel instead of erroring.
func Field(value string, pattern *regexp.Regexp, fallback string) string {
	if pattern.MatchString(value) {
		return value
	}
	return fallback
}
