// Package ocf builds Open Cap Table Format documents from questionnaire
// records: typed datamap descriptors, the embedded default datamaps, one
// parser per document, the conversion pipeline, packaging and validation.
package ocf

import (
	"fmt"
	"strings"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
)

const (
	// ParserVersion is injected into every document as PARSER_VERSION.
	ParserVersion = "0.2.0"

	// Version is the OCF version the produced files declare.
	Version = "1.1.0"
)

// Datamap types. Post-processors are registered against these.
const (
	TypeCurrency                 datamap.TypeID = "Currency"
	TypeRatio                    datamap.TypeID = "Ratio"
	TypeAddress                  datamap.TypeID = "Address"
	TypePhone                    datamap.TypeID = "Phone"
	TypeIssuer                   datamap.TypeID = "Issuer"
	TypeStakeholderName          datamap.TypeID = "StakeholderName"
	TypeEmail                    datamap.TypeID = "Email"
	TypePrimaryContact           datamap.TypeID = "PrimaryContact"
	TypeStakeholder              datamap.TypeID = "Stakeholder"
	TypeStockLegend              datamap.TypeID = "StockLegend"
	TypeConversionMechanism      datamap.TypeID = "ConversionMechanism"
	TypeConversionRight          datamap.TypeID = "ConversionRight"
	TypeStockClass               datamap.TypeID = "StockClass"
	TypeStockPlan                datamap.TypeID = "StockPlan"
	TypeSecurityLawExemption     datamap.TypeID = "SecurityLawExemption"
	TypeVestingStockIssuance     datamap.TypeID = "VestingStockIssuance"
	TypeFullyVestedStockIssuance datamap.TypeID = "FullyVestedStockIssuance"
	TypeVestingDrivers           datamap.TypeID = "VestingDrivers"
	TypeVestingScheduleInputs    datamap.TypeID = "VestingScheduleInputs"
	TypeVestingEventsInputs      datamap.TypeID = "VestingEventsInputs"

	TypeRepeatableStakeholders              datamap.TypeID = "RepeatableStakeholders"
	TypeRepeatableVestingStockIssuances     datamap.TypeID = "RepeatableVestingStockIssuances"
	TypeRepeatableFullyVestedStockIssuances datamap.TypeID = "RepeatableFullyVestedStockIssuances"
	TypeRepeatableVestingScheduleDrivers    datamap.TypeID = "RepeatableVestingScheduleDrivers"
	TypeRepeatableVestingEventDrivers       datamap.TypeID = "RepeatableVestingEventDrivers"
)

// Object types
const (
	ObjectIssuer         = "ISSUER"
	ObjectStakeholder    = "STAKEHOLDER"
	ObjectStockClass     = "STOCK_CLASS"
	ObjectStockPlan      = "STOCK_PLAN"
	ObjectLegendTemplate = "STOCK_LEGEND_TEMPLATE"
	ObjectStockIssuance  = "TX_STOCK_ISSUANCE"
)

// FileType is the file_type of an OCF file.
type FileType string

const (
	FileManifest     FileType = "OCF_MANIFEST_FILE"
	FileStakeholders FileType = "OCF_STAKEHOLDERS_FILE"
	FileStockClasses FileType = "OCF_STOCK_CLASSES_FILE"
	FileStockLegends FileType = "OCF_STOCK_LEGEND_TEMPLATES_FILE"
	FileStockPlans   FileType = "OCF_STOCK_PLANS_FILE"
	FileTransactions FileType = "OCF_TRANSACTIONS_FILE"
	FileValuations   FileType = "OCF_VALUATIONS_FILE"
	FileVestingTerms FileType = "OCF_VESTING_TERMS_FILE"
)

// ClassKind selects the common or the founder preferred variant of a stock
// class or legend.
type ClassKind string

const (
	Common    ClassKind = "COMMON"
	Preferred ClassKind = "PREFERRED"
)

// ParseClassKind accepts COMMON or PREFERRED in any case.
func ParseClassKind(s string) (ClassKind, error) {
	switch k := ClassKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Common, Preferred:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported stock class kind %q: use COMMON or PREFERRED", s)
	}
}
