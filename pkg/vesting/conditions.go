package vesting

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Trigger types
const (
	TriggerVestingStart    = "VESTING_START_DATE"
	TriggerVestingEvent    = "VESTING_EVENT"
	TriggerScheduleRelated = "VESTING_SCHEDULE_RELATIVE"
)

// Portion is a fraction of the grant, or of the unvested remainder when
// Remainder is true.
type Portion struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
	Remainder   *bool  `json:"remainder,omitempty"`
}

type Period struct {
	Length      int        `json:"length"`
	Type        PeriodType `json:"type"`
	Occurrences int        `json:"occurrences"`
	DayOfMonth  string     `json:"day_of_month"`
}

type Trigger struct {
	Type                  string  `json:"type"`
	Period                *Period `json:"period,omitempty"`
	RelativeToConditionID string  `json:"relative_to_condition_id,omitempty"`
}

// Condition is one node of a vesting condition graph.
type Condition struct {
	ID               string   `json:"id"`
	Description      string   `json:"description,omitempty"`
	Portion          *Portion `json:"portion,omitempty"`
	Quantity         string   `json:"quantity,omitempty"`
	Trigger          Trigger  `json:"trigger"`
	NextConditionIDs []string `json:"next_condition_ids"`
}

// Amount is either a Quantity or a Numerator/Denominator portion. A zero
// Amount is neither.
type Amount struct {
	Quantity    *int
	Numerator   *int
	Denominator *int
	Remainder   *bool
}

// Fraction builds a portion amount.
func Fraction(numerator, denominator int, remainder bool) Amount {
	return Amount{Numerator: &numerator, Denominator: &denominator, Remainder: &remainder}
}

// Quantity builds a fixed-quantity amount.
func Quantity(n int) Amount {
	return Amount{Quantity: &n}
}

func (a Amount) hasPortion() bool {
	return a.Numerator != nil || a.Denominator != nil
}

func (a Amount) validate() error {
	if a.hasPortion() && (a.Numerator == nil || a.Denominator == nil) {
		return fmt.Errorf("a portion needs both a numerator and a denominator")
	}
	if a.Quantity != nil && a.hasPortion() && (*a.Numerator != 0 || *a.Denominator != 0) {
		return fmt.Errorf("use either a quantity or a portion, not both")
	}
	return nil
}

func (a Amount) apply(c *Condition) {
	if a.Quantity != nil {
		c.Quantity = strconv.Itoa(*a.Quantity)
	}
	if a.Numerator != nil && a.Denominator != nil {
		c.Portion = &Portion{
			Numerator:   strconv.Itoa(*a.Numerator),
			Denominator: strconv.Itoa(*a.Denominator),
			Remainder:   a.Remainder,
		}
	}
}

func conditionID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func nextIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// EventCondition builds a condition that vests amount when an event occurs.
// An empty id gets a random uuid.
func EventCondition(id, description string, amount Amount, next []string) (Condition, error) {
	if err := amount.validate(); err != nil {
		return Condition{}, err
	}
	c := Condition{
		ID:               conditionID(id),
		Description:      description,
		Trigger:          Trigger{Type: TriggerVestingEvent},
		NextConditionIDs: nextIDs(next),
	}
	amount.apply(&c)
	return c, nil
}

// StartCondition builds the vesting start condition. A positive portion or a
// quantity is required.
func StartCondition(id string, amount Amount, next []string) (Condition, error) {
	if err := amount.validate(); err != nil {
		return Condition{}, err
	}
	if amount.Quantity == nil && !amount.hasPortion() {
		return Condition{}, fmt.Errorf("a vesting start condition needs a quantity or a portion")
	}
	c := Condition{
		ID:               conditionID(id),
		Trigger:          Trigger{Type: TriggerVestingStart},
		NextConditionIDs: nextIDs(next),
	}
	if amount.hasPortion() && (*amount.Numerator == 0 || *amount.Denominator == 0) {
		amount.Numerator, amount.Denominator = nil, nil
	}
	amount.apply(&c)
	return c, nil
}

// RelativeSchedule describes a repeating period measured from another condition.
type RelativeSchedule struct {
	RelativeTo  string
	Units       PeriodType
	Length      int
	Occurrences int
	DayOfMonth  string
}

// RelativeCondition builds a time-based condition that vests amount every
// period after s.RelativeTo.
func RelativeCondition(id string, s RelativeSchedule, amount Amount, next []string) (Condition, error) {
	if err := amount.validate(); err != nil {
		return Condition{}, err
	}
	if s.Units == "" {
		s.Units = PeriodYears
	}
	if s.Length == 0 {
		s.Length = 1
	}
	if s.Occurrences == 0 {
		s.Occurrences = 1
	}
	if s.DayOfMonth == "" {
		s.DayOfMonth = DayOfMonthVestingStart
	}

	c := Condition{
		ID: conditionID(id),
		Description: fmt.Sprintf("Autogenerated Time-Based Vesting Condition occurring every %d %s, %d times, after %s",
			s.Length, s.Units, s.Occurrences, s.RelativeTo),
		Trigger: Trigger{
			Type: TriggerScheduleRelated,
			Period: &Period{
				Length:      s.Length,
				Type:        s.Units,
				Occurrences: s.Occurrences,
				DayOfMonth:  s.DayOfMonth,
			},
			RelativeToConditionID: s.RelativeTo,
		},
		NextConditionIDs: nextIDs(next),
	}
	amount.apply(&c)
	return c, nil
}

// EventGenerator builds the event condition that vests an accelerated amount
// for a period. fullyVested is set for the last period, after which the
// acceleration vests everything.
type EventGenerator func(id string, period int, units PeriodType, fullyVested bool, numerator, denominator int) Condition

// CiCEvent is an EventGenerator for acceleration on a change in control.
func CiCEvent(id string, period int, units PeriodType, fullyVested bool, numerator, denominator int) Condition {
	description := fmt.Sprintf("There is a change in control during month %d of vesting", period)
	if fullyVested {
		description = fmt.Sprintf("There is a change in control on or after %s %d of vesting", units, period)
	}
	c, _ := EventCondition(id, description, Fraction(numerator, denominator, false), nil)
	return c
}

// TerminationEvent is an EventGenerator for acceleration on involuntary termination.
func TerminationEvent(id string, period int, units PeriodType, fullyVested bool, numerator, denominator int) Condition {
	description := fmt.Sprintf("Security holder terminated during month %d of vesting", period)
	if fullyVested {
		description = fmt.Sprintf("Security holder terminated on or after %s %d of vesting", units, period)
	}
	c, _ := EventCondition(id, description, Fraction(numerator, denominator, false), nil)
	return c
}

const preCliffID = "PRE-CLIFF-VEST-PERIOD"

func accelPeriodID(month int) string {
	return fmt.Sprintf("MONTH-%d-TO-%d-ACCELERATED-AMT-VEST-PERIOD", month, month+1)
}

func accelAmountID(month int) string {
	return fmt.Sprintf("MONTH-%d-TO-%d-ACCEL-VEST-AMOUNT", month, month+1)
}

func monthlyPeriod(length int, relativeTo string) Trigger {
	return Trigger{
		Type: TriggerScheduleRelated,
		Period: &Period{
			Length:      length,
			Type:        PeriodMonths,
			Occurrences: 1,
			DayOfMonth:  DayOfMonthVestingStart,
		},
		RelativeToConditionID: relativeTo,
	}
}

func zeroPortion() *Portion {
	return &Portion{Numerator: "0", Denominator: "0"}
}

// TimeServedAcceleration builds a chain of monthly conditions that credits the
// holder with creditMonths extra months of service when the event produced by
// gen occurs. Each month of the schedule has a period condition and an amount
// condition; the chain ends with a condition that vests the whole grant once
// the credited service reaches endMonth. It returns the id of the first
// condition in the chain.
func TimeServedAcceleration(startConditionID string, endMonth, cliffMonth, creditMonths int, gen EventGenerator) (string, []Condition, error) {
	if cliffMonth >= endMonth {
		return "", nil, fmt.Errorf("cliff month %d must be before the end month %d", cliffMonth, endMonth)
	}
	if creditMonths > endMonth-cliffMonth {
		return "", nil, fmt.Errorf("%d months of credit exceed the %d months that can vest", creditMonths, endMonth-cliffMonth)
	}
	if gen == nil {
		gen = TerminationEvent
	}

	firstMonth := cliffMonth - creditMonths
	if firstMonth < 0 {
		firstMonth = 0
	}
	fullyVestedMonth := endMonth - creditMonths

	var (
		startID    string
		conditions []Condition
	)
	if firstMonth > 0 {
		startID = preCliffID
		conditions = append(conditions, Condition{
			ID:               preCliffID,
			Description:      "Period during which no shares will vest, even with acceleration",
			Portion:          zeroPortion(),
			Trigger:          monthlyPeriod(firstMonth, startConditionID),
			NextConditionIDs: []string{accelPeriodID(firstMonth)},
		})
	}

	for month := firstMonth; month <= fullyVestedMonth; month++ {
		relativeTo := accelPeriodID(month - 1)
		if month == firstMonth {
			relativeTo = startConditionID
			if firstMonth > 0 {
				relativeTo = preCliffID
			}
		}

		if month < fullyVestedMonth {
			if startID == "" {
				startID = accelPeriodID(month)
			}
			next := accelPeriodID(month + 1)
			if month == fullyVestedMonth-1 {
				next = fmt.Sprintf("POST-MONTH-%d-ACCELERATED-AMT-VEST-PERIOD", month+1)
			}
			conditions = append(conditions,
				Condition{
					ID:               accelPeriodID(month),
					Description:      fmt.Sprintf("Amount of shares that vest for single trigger acceleration on month %d of vesting schedule", month),
					Portion:          zeroPortion(),
					Trigger:          monthlyPeriod(1, relativeTo),
					NextConditionIDs: []string{next, accelAmountID(month)},
				},
				gen(accelAmountID(month), month, PeriodMonths, false, month+creditMonths, endMonth),
			)
			continue
		}

		finalID := fmt.Sprintf("MONTH-%d-AND-LATER-ACCEL-VEST-AMOUNT", month)
		if startID == "" {
			startID = finalID
		}
		conditions = append(conditions,
			gen(finalID, month, PeriodMonths, true, endMonth, endMonth),
			Condition{
				ID:               fmt.Sprintf("POST-MONTH-%d-ACCELERATED-AMT-VEST-PERIOD", month),
				Description:      fmt.Sprintf("Accelerated vesting is fully vested on or after month %d of vesting schedule", month),
				Portion:          zeroPortion(),
				Trigger:          monthlyPeriod(endMonth-fullyVestedMonth, relativeTo),
				NextConditionIDs: []string{finalID},
			},
		)
	}
	return startID, conditions, nil
}
