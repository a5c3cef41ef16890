package ocf

import (
	"time"

	"github.com/google/uuid"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

// now is swapped in tests.
var now = time.Now

func today() string {
	return now().UTC().Format("2006-01-02")
}

func uuidDefault() datamap.Node {
	return datamap.Static(uuid.NewString())
}

func todayDefault() datamap.Node {
	return datamap.Static(today())
}

func str(name string) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name, Required: true}
}

func optional(name string) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name}
}

func nested(name string, d *datamap.Descriptor) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name, Type: d, Required: true}
}

func list(name string, d *datamap.Descriptor) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name, Type: d, List: true, Required: true}
}

func strList(name string) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name, List: true, Required: true}
}

func withDefault(name string, fn func() datamap.Node) datamap.FieldSpec {
	return datamap.FieldSpec{Name: name, Default: fn}
}

func objectType(t string) datamap.FieldSpec {
	return datamap.FieldSpec{Name: "object_type", Default: datamap.StaticDefault(t)}
}

func repeatable(t datamap.TypeID, pattern *datamap.Descriptor) *datamap.Descriptor {
	return &datamap.Descriptor{Type: t, Pattern: pattern}
}

var CurrencyDescriptor = &datamap.Descriptor{
	Type:   TypeCurrency,
	Fields: []datamap.FieldSpec{str("amount"), str("currency")},
}

var RatioDescriptor = &datamap.Descriptor{
	Type:   TypeRatio,
	Fields: []datamap.FieldSpec{str("numerator"), str("denominator")},
}

var AddressDescriptor = &datamap.Descriptor{
	Type: TypeAddress,
	Fields: []datamap.FieldSpec{
		withDefault("address_type", datamap.StaticDefault("CONTACT")),
		str("street_suite"),
		str("city"),
		str("country_subdivision"),
		withDefault("country", datamap.StaticDefault("US")),
		str("postal_code"),
	},
}

var PhoneDescriptor = &datamap.Descriptor{
	Type:   TypePhone,
	Fields: []datamap.FieldSpec{str("phone_type"), str("phone_number")},
}

var IssuerDescriptor = &datamap.Descriptor{
	Type: TypeIssuer,
	Fields: []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		str("legal_name"),
		str("dba"),
		str("country_of_formation"),
		str("country_subdivision_of_formation"),
		withDefault("formation_date", todayDefault),
		objectType(ObjectIssuer),
		{Name: "tax_ids", List: true},
		nested("address", AddressDescriptor),
		{Name: "phone", Type: PhoneDescriptor},
		strList("comments"),
	},
}

var StakeholderNameDescriptor = &datamap.Descriptor{
	Type:   TypeStakeholderName,
	Fields: []datamap.FieldSpec{str("legal_name")},
}

var EmailDescriptor = &datamap.Descriptor{
	Type: TypeEmail,
	Fields: []datamap.FieldSpec{
		withDefault("email_type", datamap.StaticDefault("PERSONAL")),
		str("email_address"),
	},
}

var PrimaryContactDescriptor = &datamap.Descriptor{
	Type: TypePrimaryContact,
	Fields: []datamap.FieldSpec{
		nested("name", StakeholderNameDescriptor),
		list("emails", EmailDescriptor),
		list("phone_numbers", PhoneDescriptor),
	},
}

var StakeholderDescriptor = &datamap.Descriptor{
	Type: TypeStakeholder,
	Fields: []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		objectType(ObjectStakeholder),
		nested("name", StakeholderNameDescriptor),
		withDefault("stakeholder_type", datamap.StaticDefault("INDIVIDUAL")),
		str("issuer_assigned_id"),
		withDefault("current_relationship", datamap.StaticDefault("FOUNDER")),
		nested("primary_contact", PrimaryContactDescriptor),
		list("addresses", AddressDescriptor),
		{Name: "tax_ids", List: true, Default: datamap.EmptyListDefault()},
		strList("comments"),
	},
}

var StockLegendDescriptor = &datamap.Descriptor{
	Type: TypeStockLegend,
	Fields: []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		objectType(ObjectLegendTemplate),
		strList("comments"),
		str("name"),
		str("text"),
	},
}

var ConversionMechanismDescriptor = &datamap.Descriptor{
	Type: TypeConversionMechanism,
	Fields: []datamap.FieldSpec{
		str("type"),
		nested("conversion_price", CurrencyDescriptor),
		str("rounding_type"),
		nested("ratio", RatioDescriptor),
	},
}

var ConversionRightDescriptor = &datamap.Descriptor{
	Type: TypeConversionRight,
	Fields: []datamap.FieldSpec{
		withDefault("type", datamap.StaticDefault("STOCK_CLASS_CONVERSION_RIGHT")),
		{Name: "converts_to_future_round", Required: true, Static: datamap.KindBool},
		optional("converts_to_stock_class_id"),
		nested("conversion_mechanism", ConversionMechanismDescriptor),
	},
}

var StockClassDescriptor = &datamap.Descriptor{
	Type: TypeStockClass,
	Fields: []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		str("name"),
		objectType(ObjectStockClass),
		str("class_type"),
		str("default_id_prefix"),
		str("initial_shares_authorized"),
		withDefault("board_approval_date", todayDefault),
		str("votes_per_share"),
		nested("par_value", CurrencyDescriptor),
		nested("price_per_share", CurrencyDescriptor),
		str("seniority"),
		{Name: "conversion_rights", Type: ConversionRightDescriptor, List: true, Default: datamap.EmptyListDefault()},
		optional("liquidation_preference_multiple"),
		optional("participation_cap_multiple"),
		strList("comments"),
	},
}

var StockPlanDescriptor = &datamap.Descriptor{
	Type: TypeStockPlan,
	Fields: []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		objectType(ObjectStockPlan),
		str("plan_name"),
		str("stock_class_id"),
		withDefault("board_approval_date", todayDefault),
		withDefault("stockholder_approval_date", todayDefault),
		str("initial_shares_reserved"),
		strList("comments"),
	},
}

var SecurityLawExemptionDescriptor = &datamap.Descriptor{
	Type:   TypeSecurityLawExemption,
	Fields: []datamap.FieldSpec{str("jurisdiction"), str("description")},
}

func issuanceFields(vestingTerms bool) []datamap.FieldSpec {
	fields := []datamap.FieldSpec{
		withDefault("id", uuidDefault),
		withDefault("date", todayDefault),
		objectType(ObjectStockIssuance),
		withDefault("security_id", uuidDefault),
		str("custom_id"),
		strList("comments"),
		str("stakeholder_id"),
		withDefault("board_approval_date", todayDefault),
		str("consideration_text"),
		{Name: "security_law_exemptions", Type: SecurityLawExemptionDescriptor, List: true, Default: datamap.EmptyListDefault()},
		str("stock_class_id"),
		nested("share_price", CurrencyDescriptor),
		str("quantity"),
		nested("cost_basis", CurrencyDescriptor),
		strList("stock_legend_ids"),
	}
	if vestingTerms {
		fields = append(fields, optional("vesting_terms_id"))
	}
	return fields
}

var VestingStockIssuanceDescriptor = &datamap.Descriptor{
	Type:   TypeVestingStockIssuance,
	Fields: issuanceFields(true),
}

var FullyVestedStockIssuanceDescriptor = &datamap.Descriptor{
	Type:   TypeFullyVestedStockIssuance,
	Fields: issuanceFields(false),
}

var VestingDriversDescriptor = &datamap.Descriptor{
	Type: TypeVestingDrivers,
	Fields: []datamap.FieldSpec{
		str(vesting.DriverSingleTrigger),
		str(vesting.DriverDoubleTrigger),
		str(vesting.DriverSharesIssued),
		str(vesting.DriverConsideration),
		str(vesting.DriverSchedule),
		str(vesting.DriverCommencement),
		str(vesting.DriverStockholderID),
	},
}

// The schedule and event inputs share a shape but are separate types so each
// parser registers its own vesting_schedule post-processor.
var VestingScheduleInputsDescriptor = &datamap.Descriptor{
	Type:   TypeVestingScheduleInputs,
	Fields: []datamap.FieldSpec{nested("vesting_schedule", VestingDriversDescriptor)},
}

var VestingEventsInputsDescriptor = &datamap.Descriptor{
	Type:   TypeVestingEventsInputs,
	Fields: []datamap.FieldSpec{nested("vesting_schedule", VestingDriversDescriptor)},
}

var (
	RepeatableStakeholdersDescriptor              = repeatable(TypeRepeatableStakeholders, StakeholderDescriptor)
	RepeatableVestingStockIssuancesDescriptor     = repeatable(TypeRepeatableVestingStockIssuances, VestingStockIssuanceDescriptor)
	RepeatableFullyVestedStockIssuancesDescriptor = repeatable(TypeRepeatableFullyVestedStockIssuances, FullyVestedStockIssuanceDescriptor)
	RepeatableVestingScheduleDriversDescriptor    = repeatable(TypeRepeatableVestingScheduleDrivers, VestingScheduleInputsDescriptor)
	RepeatableVestingEventDriversDescriptor       = repeatable(TypeRepeatableVestingEventDrivers, VestingEventsInputsDescriptor)
)
