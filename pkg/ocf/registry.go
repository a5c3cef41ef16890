package ocf

import (
	"fmt"
	"strings"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	"github.com/wehubfusion/ce2ocf/pkg/postprocess"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

var repeatableTypes = []datamap.TypeID{
	TypeRepeatableStakeholders,
	TypeRepeatableVestingStockIssuances,
	TypeRepeatableFullyVestedStockIssuances,
	TypeRepeatableVestingScheduleDrivers,
	TypeRepeatableVestingEventDrivers,
}

// DefaultRegistry returns the post-processors every parser starts from:
// phone and state normalisation, plan names from the plan year, repeat
// labels for every repeated block, dropping vesting terms from fully vested
// issuances and vesting terms generation from the schedule drivers. A nil
// generator uses vesting.Default.
func DefaultRegistry(gen *vesting.Generator) *datamap.Registry {
	scheduleFromDrivers := vesting.ScheduleFromDrivers
	if gen != nil {
		scheduleFromDrivers = gen.ScheduleFromDrivers
	}

	reg := datamap.NewRegistry().
		For(TypePhone).Register("phone_number", postprocess.InternationalPhone).
		For(TypeAddress).Register("country_subdivision", StateCodeOrInput).
		For(TypeStockPlan).Register("plan_name", PlanNameFromYear).
		For(TypeVestingStockIssuance).Register("vesting_terms_id", postprocess.DropFullyVested).
		For(TypeVestingScheduleInputs).Register(vesting.DriverSchedule, scheduleFromDrivers).
		Registry()
	for _, t := range repeatableTypes {
		reg.For(t).Register(datamap.RepeatedVariablesField, postprocess.RepeatLabelsToVariables)
	}
	return reg
}

// StateCodeOrInput converts a US state to its code and leaves anything it
// does not recognise unchanged.
func StateCodeOrInput(value interface{}, records record.Records) (interface{}, error) {
	code, err := postprocess.StateToProvinceCode(value, records)
	if err != nil || code == nil {
		return value, err
	}
	return code, nil
}

// PlanNameFromYear names a stock plan after the year it was adopted. The
// value may be an ISO date or a bare year.
func PlanNameFromYear(value interface{}, records record.Records) (interface{}, error) {
	year, err := postprocess.YearFromISODate(value, records)
	if err != nil {
		return nil, err
	}
	if year == nil {
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return value, nil
		}
		year = strings.TrimSpace(s)
	}
	return fmt.Sprintf("%s Stock Plan", year), nil
}
