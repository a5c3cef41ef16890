// Package vesting builds cap-table vesting terms, vesting conditions and
// vesting start events from the questionnaire's vesting and acceleration
// choices.
package vesting

import (
	"fmt"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

// ScheduleType is the questionnaire's vesting schedule choice.
type ScheduleType string

const (
	ScheduleFourYearCliff   ScheduleType = "4yr with 1yr Cliff"
	ScheduleFourYearNoCliff ScheduleType = "4yr with no Cliff"
	ScheduleFullyVested     ScheduleType = "Fully Vested"
	ScheduleCustom          ScheduleType = "Custom"
)

// SingleTrigger is the single trigger acceleration choice.
type SingleTrigger string

const (
	SingleTriggerNone                     SingleTrigger = "N/A"
	SingleTriggerSixMonthsAllTimes        SingleTrigger = "6 months; all times after CiC"
	SingleTriggerTwelveMonthsAllTimes     SingleTrigger = "12 months; all times after CiC"
	SingleTriggerTwentyFourMonthsAllTimes SingleTrigger = "24 months; all times after CiC"
	SingleTriggerFullAllTimes             SingleTrigger = "100%; all times after CiC"
	SingleTriggerSixMonthsInvoluntary     SingleTrigger = "6 months; Involuntary Termination"
	SingleTriggerTwelveMonthsInvoluntary  SingleTrigger = "12 months; Involuntary Termination"
	SingleTriggerTwentyFourInvoluntary    SingleTrigger = "24 months; Involuntary Termination"
	SingleTriggerFullInvoluntary          SingleTrigger = "100%; Involuntary Termination"
	SingleTriggerCustom                   SingleTrigger = "Custom"
)

// DoubleTrigger is the double trigger acceleration choice.
type DoubleTrigger string

const (
	DoubleTriggerNone              DoubleTrigger = "N/A"
	DoubleTriggerQuarterWithinYear DoubleTrigger = "25% of unvested; Involuntary Termination within 12 months after CiC"
	DoubleTriggerHalfWithinYear    DoubleTrigger = "50% of unvested; Involuntary Termination within 12 months after CiC"
	DoubleTriggerFullWithinYear    DoubleTrigger = "100% of unvested; Involuntary Termination within 12 months after CiC"
	DoubleTriggerQuarterAnyTime    DoubleTrigger = "25% of unvested; Involuntary Termination any time after CiC"
	DoubleTriggerHalfAnyTime       DoubleTrigger = "50% of unvested; Involuntary Termination any time after CiC"
	DoubleTriggerFullAnyTime       DoubleTrigger = "100% of unvested; Involuntary Termination any time after CiC"
	DoubleTriggerCustom            DoubleTrigger = "Custom"
)

// PeriodType is the unit of a time-based vesting period.
type PeriodType string

const (
	PeriodDays   PeriodType = "DAYS"
	PeriodMonths PeriodType = "MONTHS"
	PeriodYears  PeriodType = "YEARS"
)

// DayOfMonthVestingStart vests on the vesting start day, or the last day of
// shorter months.
const DayOfMonthVestingStart = "VESTING_START_DAY_OR_LAST_DAY_OF_MONTH"

var singleTriggers = map[SingleTrigger]struct{}{
	SingleTriggerNone:                     {},
	SingleTriggerSixMonthsAllTimes:        {},
	SingleTriggerTwelveMonthsAllTimes:     {},
	SingleTriggerTwentyFourMonthsAllTimes: {},
	SingleTriggerFullAllTimes:             {},
	SingleTriggerSixMonthsInvoluntary:     {},
	SingleTriggerTwelveMonthsInvoluntary:  {},
	SingleTriggerTwentyFourInvoluntary:    {},
	SingleTriggerFullInvoluntary:          {},
	SingleTriggerCustom:                   {},
}

var doubleTriggers = map[DoubleTrigger]struct{}{
	DoubleTriggerNone:              {},
	DoubleTriggerQuarterWithinYear: {},
	DoubleTriggerHalfWithinYear:    {},
	DoubleTriggerFullWithinYear:    {},
	DoubleTriggerQuarterAnyTime:    {},
	DoubleTriggerHalfAnyTime:       {},
	DoubleTriggerFullAnyTime:       {},
	DoubleTriggerCustom:            {},
}

// ParseScheduleType validates a schedule choice.
func ParseScheduleType(s string) (ScheduleType, error) {
	switch t := ScheduleType(s); t {
	case ScheduleFourYearCliff, ScheduleFourYearNoCliff, ScheduleFullyVested, ScheduleCustom:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown vesting schedule %q", cerrors.ErrUnsupportedVesting, s)
}

// ParseSingleTrigger validates a single trigger choice.
func ParseSingleTrigger(s string) (SingleTrigger, error) {
	if _, ok := singleTriggers[SingleTrigger(s)]; ok {
		return SingleTrigger(s), nil
	}
	return "", fmt.Errorf("%w: unknown single trigger acceleration %q", cerrors.ErrUnsupportedVesting, s)
}

// ParseDoubleTrigger validates a double trigger choice.
func ParseDoubleTrigger(s string) (DoubleTrigger, error) {
	if _, ok := doubleTriggers[DoubleTrigger(s)]; ok {
		return DoubleTrigger(s), nil
	}
	return "", fmt.Errorf("%w: unknown double trigger acceleration %q", cerrors.ErrUnsupportedVesting, s)
}

// accelerates reports whether t adds conditions to a schedule.
func (t SingleTrigger) accelerates() bool {
	return t != "" && t != SingleTriggerNone
}

func (t DoubleTrigger) accelerates() bool {
	return t != "" && t != DoubleTriggerNone
}
