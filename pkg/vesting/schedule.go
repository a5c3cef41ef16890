package vesting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/record"
)

// Object types and allocation
const (
	ObjectTypeVestingTerms = "VESTING_TERMS"
	ObjectTypeVestingStart = "TX_VESTING_START"
	AllocationCumulative   = "CUMULATIVE_ROUNDING"
)

// Keys of a vesting driver mapping.
const (
	DriverSchedule      = "vesting_schedule"
	DriverSingleTrigger = "single_trigger"
	DriverDoubleTrigger = "double_trigger"
	DriverCommencement  = "vesting_commencement_date"
	DriverStockholderID = "stockholder_id"
	DriverSharesIssued  = "shares_issued"
	DriverConsideration = "consideration"
)

// Terms is a VESTING_TERMS object.
type Terms struct {
	ID                string      `json:"id"`
	ObjectType        string      `json:"object_type"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	AllocationType    string      `json:"allocation_type"`
	VestingConditions []Condition `json:"vesting_conditions"`
}

// StartEvent is a TX_VESTING_START transaction.
type StartEvent struct {
	ObjectType         string `json:"object_type"`
	ID                 string `json:"id"`
	SecurityID         string `json:"security_id"`
	VestingConditionID string `json:"vesting_condition_id"`
	Date               string `json:"date"`
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"2 January 2006",
}

// ParseDate reads a questionnaire date in any of the layouts the vendor emits.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", cerrors.ErrInvalidRecords, s)
}

// NewStartEvent builds a vesting start transaction for securityID dated at
// the vesting commencement date.
func NewStartEvent(commencement, securityID, conditionID string) (StartEvent, error) {
	date, err := ParseDate(commencement)
	if err != nil {
		return StartEvent{}, err
	}
	return StartEvent{
		ObjectType:         ObjectTypeVestingStart,
		ID:                 uuid.NewString(),
		SecurityID:         securityID,
		VestingConditionID: conditionID,
		Date:               date.Format("2006-01-02"),
	}, nil
}

type timeServed struct {
	months int
	event  EventGenerator
}

var timeServedTriggers = map[SingleTrigger]timeServed{
	SingleTriggerSixMonthsAllTimes:        {6, CiCEvent},
	SingleTriggerTwelveMonthsAllTimes:     {12, CiCEvent},
	SingleTriggerTwentyFourMonthsAllTimes: {24, CiCEvent},
	SingleTriggerSixMonthsInvoluntary:     {6, TerminationEvent},
	SingleTriggerTwelveMonthsInvoluntary:  {12, TerminationEvent},
	SingleTriggerTwentyFourInvoluntary:    {24, TerminationEvent},
}

var cliffMonths = map[ScheduleType]int{
	ScheduleFourYearCliff:   12,
	ScheduleFourYearNoCliff: 0,
}

const scheduleMonths = 48

// Generator builds vesting terms from the questionnaire's choices.
type Generator struct {
	defs   *Definitions
	logger logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithDefinitions replaces the embedded definition tables.
func WithDefinitions(defs *Definitions) Option {
	return func(g *Generator) {
		g.defs = defs
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a Generator using the embedded definitions unless
// WithDefinitions is given.
func NewGenerator(opts ...Option) (*Generator, error) {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNoOp(g.logger)
	if g.defs == nil {
		defs, err := DefaultDefinitions()
		if err != nil {
			return nil, err
		}
		g.defs = defs
	}
	return g, nil
}

var (
	defaultOnce      sync.Once
	defaultGenerator *Generator
	defaultErr       error
)

// Default returns a shared Generator over the embedded definitions.
func Default() (*Generator, error) {
	defaultOnce.Do(func() {
		defaultGenerator, defaultErr = NewGenerator()
	})
	return defaultGenerator, defaultErr
}

// ScheduleFromDrivers is Generator.ScheduleFromDrivers on the default generator.
func ScheduleFromDrivers(value interface{}, records record.Records) (interface{}, error) {
	g, err := Default()
	if err != nil {
		return nil, err
	}
	return g.ScheduleFromDrivers(value, records)
}

// ScheduleFromEnums builds the vesting terms with the given id. A fully
// vested schedule has no terms and gives nil.
func (g *Generator) ScheduleFromEnums(schedule ScheduleType, id string, single SingleTrigger, double DoubleTrigger) (*Terms, error) {
	var (
		start      Condition
		conditions []Condition
		err        error
	)

	switch schedule {
	case ScheduleFourYearCliff:
		start, err = StartCondition(StartID(id), Quantity(0), []string{CliffID(id)})
		if err != nil {
			return nil, err
		}
		cliff, err := RelativeCondition(CliffID(id), RelativeSchedule{
			RelativeTo:  StartID(id),
			Units:       PeriodMonths,
			Length:      12,
			Occurrences: 1,
		}, Fraction(12, scheduleMonths, false), []string{MonthlyID(id)})
		if err != nil {
			return nil, err
		}
		monthly, err := RelativeCondition(MonthlyID(id), RelativeSchedule{
			RelativeTo:  CliffID(id),
			Units:       PeriodMonths,
			Length:      1,
			Occurrences: 36,
		}, Fraction(1, scheduleMonths, false), nil)
		if err != nil {
			return nil, err
		}
		conditions = []Condition{cliff, monthly}

	case ScheduleFourYearNoCliff:
		start, err = StartCondition(StartID(id), Quantity(0), []string{MonthlyID(id)})
		if err != nil {
			return nil, err
		}
		monthly, err := RelativeCondition(MonthlyID(id), RelativeSchedule{
			RelativeTo:  StartID(id),
			Units:       PeriodMonths,
			Length:      1,
			Occurrences: scheduleMonths,
		}, Fraction(1, scheduleMonths, false), nil)
		if err != nil {
			return nil, err
		}
		conditions = []Condition{monthly}

	case ScheduleFullyVested:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: vesting schedule %q", cerrors.ErrUnsupportedVesting, schedule)
	}

	if double == DoubleTriggerCustom {
		return nil, fmt.Errorf("%w: custom double trigger acceleration", cerrors.ErrUnsupportedVesting)
	}
	if single == SingleTriggerCustom {
		return nil, fmt.Errorf("%w: custom single trigger acceleration", cerrors.ErrUnsupportedVesting)
	}

	if double.accelerates() {
		extra, err := g.doubleTriggerConditions(double, id)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, extra...)
		start.NextConditionIDs = append(start.NextConditionIDs, CiCEventID(id, Double))
		g.logger.Debug("generated double trigger conditions",
			logging.F("schedule_id", id),
			logging.F("conditions", len(extra)))
	}

	if single.accelerates() {
		firstID, extra, err := g.singleTriggerConditions(single, schedule, id)
		if err != nil {
			return nil, err
		}
		if firstID != "" {
			start.NextConditionIDs = append(start.NextConditionIDs, firstID)
			conditions = append(conditions, extra...)
		}
		g.logger.Debug("generated single trigger conditions",
			logging.F("schedule_id", id),
			logging.F("conditions", len(extra)))
	}

	return &Terms{
		ID:                id,
		ObjectType:        ObjectTypeVestingTerms,
		Name:              string(schedule),
		Description:       string(schedule),
		AllocationType:    AllocationCumulative,
		VestingConditions: append([]Condition{start}, conditions...),
	}, nil
}

func (g *Generator) singleTriggerConditions(single SingleTrigger, schedule ScheduleType, id string) (string, []Condition, error) {
	switch single {
	case SingleTriggerFullInvoluntary, SingleTriggerFullAllTimes:
		def := g.defs.SingleTrigger[single]
		if def == nil {
			return "", nil, fmt.Errorf("%w: no definition for single trigger %q", cerrors.ErrUnsupportedVesting, single)
		}
		firstID := CiCEventID(id, Single)
		if single == SingleTriggerFullInvoluntary {
			firstID = TerminationEventID(id, Single)
		}
		c, err := EventCondition(firstID, def.Description, def.amount(), nil)
		if err != nil {
			return "", nil, err
		}
		return firstID, []Condition{c}, nil
	}

	credit, ok := timeServedTriggers[single]
	if !ok {
		return "", nil, fmt.Errorf("%w: single trigger %q", cerrors.ErrUnsupportedVesting, single)
	}
	cliff, ok := cliffMonths[schedule]
	if !ok {
		g.logger.Warn("single trigger acceleration has no effect on this schedule",
			logging.F("schedule", string(schedule)),
			logging.F("single_trigger", string(single)))
		return "", nil, nil
	}
	return TimeServedAcceleration(StartID(id), scheduleMonths, cliff, credit.months, credit.event)
}

func (g *Generator) doubleTriggerConditions(double DoubleTrigger, id string) ([]Condition, error) {
	def, ok := g.defs.DoubleTrigger[double]
	if !ok {
		return nil, fmt.Errorf("%w: no definition for double trigger %q", cerrors.ErrUnsupportedVesting, double)
	}
	if def == nil {
		return nil, nil
	}

	cicID := CiCEventID(id, Double)
	terminationID := TerminationEventID(id, Double)
	next := []string{terminationID}
	var expirationID string
	if def.Expiration != nil {
		expirationID = AccelExpirationID(id, Double)
		next = []string{expirationID, terminationID}
	}

	cic, err := EventCondition(cicID, g.defs.CiC.Description, g.defs.CiC.amount(), next)
	if err != nil {
		return nil, err
	}
	conditions := []Condition{cic}

	if exp := def.Expiration; exp != nil {
		c, err := RelativeCondition(expirationID, RelativeSchedule{
			RelativeTo:  cicID,
			Units:       exp.TimeUnits,
			Length:      exp.TimeUnitQuantity,
			Occurrences: exp.TimePeriodRepetition,
		}, Fraction(exp.PortionNumerator, exp.PortionDenominator, exp.Remainder), nil)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, c)
	}

	termination, err := EventCondition(terminationID, def.Termination.Description, def.Termination.amount(), nil)
	if err != nil {
		return nil, err
	}
	return append(conditions, termination), nil
}

// Choices reads the schedule and trigger choices from a vesting driver
// mapping. Absent values are empty.
func Choices(drivers map[string]interface{}) (schedule, single, double string) {
	str := func(key string) string {
		if v, ok := drivers[key].(string); ok {
			return v
		}
		return ""
	}
	return str(DriverSchedule), str(DriverSingleTrigger), str(DriverDoubleTrigger)
}

// ScheduleFromDrivers turns a resolved vesting driver mapping into vesting
// terms identified by "<schedule>/<single trigger>/<double trigger>". It is a
// datamap post-processor. Unknown trigger values are logged and treated as
// no acceleration; a missing schedule is reported as a missing variable.
func (g *Generator) ScheduleFromDrivers(value interface{}, _ record.Records) (interface{}, error) {
	switch value.(type) {
	case nil:
		return nil, cerrors.NewVariableNotFound(DriverSchedule, 0)
	case *Terms:
		return value, nil
	}
	drivers, ok := value.(map[string]interface{})
	if !ok {
		return nil, cerrors.StructuralMismatch("vesting drivers must be a mapping, got %T", value)
	}

	scheduleRaw, singleRaw, doubleRaw := Choices(drivers)
	if scheduleRaw == "" {
		return nil, cerrors.NewVariableNotFound(DriverSchedule, 0)
	}
	schedule, err := ParseScheduleType(scheduleRaw)
	if err != nil {
		return nil, err
	}

	single, err := ParseSingleTrigger(singleRaw)
	if err != nil {
		if singleRaw != "" {
			g.logger.Warn("failed to parse single trigger acceleration",
				logging.F("value", singleRaw), logging.F("error", err))
		}
		single = ""
	}
	double, err := ParseDoubleTrigger(doubleRaw)
	if err != nil {
		if doubleRaw != "" {
			g.logger.Warn("failed to parse double trigger acceleration",
				logging.F("value", doubleRaw), logging.F("error", err))
		}
		double = ""
	}

	terms, err := g.ScheduleFromEnums(schedule, ScheduleID(scheduleRaw, singleRaw, doubleRaw), single, double)
	if err != nil || terms == nil {
		return nil, err
	}
	return terms, nil
}
