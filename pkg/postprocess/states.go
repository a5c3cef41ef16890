package postprocess

import (
	"strings"

	"golang.org/x/text/cases"
)

var states = []struct {
	code string
	name string
}{
	{"AL", "Alabama"}, {"AK", "Alaska"}, {"AZ", "Arizona"}, {"AR", "Arkansas"},
	{"CA", "California"}, {"CO", "Colorado"}, {"CT", "Connecticut"}, {"DE", "Delaware"},
	{"DC", "District of Columbia"}, {"FL", "Florida"}, {"GA", "Georgia"}, {"HI", "Hawaii"},
	{"ID", "Idaho"}, {"IL", "Illinois"}, {"IN", "Indiana"}, {"IA", "Iowa"},
	{"KS", "Kansas"}, {"KY", "Kentucky"}, {"LA", "Louisiana"}, {"ME", "Maine"},
	{"MD", "Maryland"}, {"MA", "Massachusetts"}, {"MI", "Michigan"}, {"MN", "Minnesota"},
	{"MS", "Mississippi"}, {"MO", "Missouri"}, {"MT", "Montana"}, {"NE", "Nebraska"},
	{"NV", "Nevada"}, {"NH", "New Hampshire"}, {"NJ", "New Jersey"}, {"NM", "New Mexico"},
	{"NY", "New York"}, {"NC", "North Carolina"}, {"ND", "North Dakota"}, {"OH", "Ohio"},
	{"OK", "Oklahoma"}, {"OR", "Oregon"}, {"PA", "Pennsylvania"}, {"RI", "Rhode Island"},
	{"SC", "South Carolina"}, {"SD", "South Dakota"}, {"TN", "Tennessee"}, {"TX", "Texas"},
	{"UT", "Utah"}, {"VT", "Vermont"}, {"VA", "Virginia"}, {"WA", "Washington"},
	{"WV", "West Virginia"}, {"WI", "Wisconsin"}, {"WY", "Wyoming"},
	{"AS", "American Samoa"}, {"GU", "Guam"}, {"MP", "Northern Mariana Islands"},
	{"PR", "Puerto Rico"}, {"VI", "Virgin Islands"},
}

var stateLookup = buildStateLookup()

func buildStateLookup() map[string]string {
	m := make(map[string]string, len(states)*2)
	for _, s := range states {
		m[normalizeState(s.code)] = s.code
		m[normalizeState(s.name)] = s.code
	}
	return m
}

// normalizeState case-folds s and collapses punctuation and runs of spaces. A
// Caser is stateful, so each call builds its own.
func normalizeState(s string) string {
	s = strings.NewReplacer(".", " ", ",", " ").Replace(s)
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// LookupState returns the two-letter code for a US state or territory given by
// name or code.
func LookupState(s string) (string, bool) {
	code, ok := stateLookup[normalizeState(s)]
	if ok {
		return code, true
	}
	// "N. Y." style abbreviations
	code, ok = stateLookup[strings.ReplaceAll(normalizeState(s), " ", "")]
	return code, ok
}
