// Package postprocess provides field post-processors for questionnaire answers:
// date, state and phone normalisation, repeat-label mapping, and user scripts.
package postprocess

import (
	"strconv"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

// YearFromISODate returns the year of an ISO date ("2021-05-04" gives "2021"),
// or nil when the value is not a date.
func YearFromISODate(value interface{}, _ record.Records) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return nil, nil
	}
	return strconv.Itoa(t.Year()), nil
}

// StateToProvinceCode converts a US state or territory name or code to its
// two-letter code. Unknown input gives nil.
func StateToProvinceCode(value interface{}, _ record.Records) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, nil
	}
	code, ok := LookupState(s)
	if !ok {
		return nil, nil
	}
	return code, nil
}

// InternationalPhone formats a phone number as "+CC AAA BBB CCCC". Numbers
// without a country code are parsed as US numbers. Unparseable input gives "".
func InternationalPhone(value interface{}, _ record.Records) (interface{}, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(s, "ZZ")
	if err != nil {
		num, err = phonenumbers.Parse(s, "US")
		if err != nil {
			return "", nil
		}
	}
	return formatGrouped(int(num.GetCountryCode()), strconv.FormatUint(num.GetNationalNumber(), 10)), nil
}

func formatGrouped(countryCode int, national string) string {
	part := func(from, to int) string {
		if from > len(national) {
			return ""
		}
		if to > len(national) || to < 0 {
			to = len(national)
		}
		return national[from:to]
	}
	return "+" + strconv.Itoa(countryCode) + " " + part(0, 3) + " " + part(3, 6) + " " + part(6, -1)
}

// DefaultRepeatLabels maps the questionnaire's "reuse for every stockholder"
// choices to the variables they stand for.
var DefaultRepeatLabels = map[string]string{
	"Paid With": "PaidWith",
	"Genus-level Description of Company Project":  "BroadDescriptionAssignedTechnology",
	"Specific Description of Assigned Technology": "DescriptionAssignedTechnology",
	"Vesting Schedule":                      "Vesting",
	"Vesting Commencement Date":             "VCD",
	"Single Trigger Acceleration Provision": "SingleTrigger",
	"Double Trigger Acceleration Provision": "DoubleTrigger",
}

// RepeatLabels returns a repeated_variables post-processor that maps labels
// through labels. Labels with no mapping are skipped.
func RepeatLabels(labels map[string]string) func(interface{}, record.Records) (interface{}, error) {
	return func(value interface{}, _ record.Records) (interface{}, error) {
		var in []interface{}
		switch v := value.(type) {
		case nil:
		case string:
			in = []interface{}{v}
		case []interface{}:
			in = v
		case []string:
			for _, s := range v {
				in = append(in, s)
			}
		default:
			return nil, cerrors.StructuralMismatch("repeat labels must be a string or list, got %T", value)
		}

		out := make([]interface{}, 0, len(in))
		for _, item := range in {
			label, ok := item.(string)
			if !ok {
				continue
			}
			if name, ok := labels[label]; ok {
				out = append(out, name)
			}
		}
		return out, nil
	}
}

// RepeatLabelsToVariables maps labels with DefaultRepeatLabels.
func RepeatLabelsToVariables(value interface{}, records record.Records) (interface{}, error) {
	return RepeatLabels(DefaultRepeatLabels)(value, records)
}

// DropFullyVested reports a vesting terms id built from a "Fully Vested"
// schedule as missing, so the field is left out of the issuance.
func DropFullyVested(value interface{}, _ record.Records) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	schedule, _, _ := strings.Cut(s, "/")
	if schedule == string(vesting.ScheduleFullyVested) {
		return nil, cerrors.NewVariableNotFound("vesting_terms_id", 0)
	}
	return value, nil
}
