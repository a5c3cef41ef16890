package ocf

import (
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/wehubfusion/ce2ocf/pkg/record"
)

var fixedNow = time.Date(2023, 3, 1, 12, 0, 0, 0, time.UTC)

func freezeTime(t *testing.T) {
	t.Helper()
	prev := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = prev })
}

type stockholder struct {
	ID, Name, Email, Phone       string
	Street, City, State, Zip     string
	Shares, PreferredShares      string
	Vesting, Single, Double, VCD string
}

var defaultStockholders = []stockholder{
	{
		ID: "sh-1", Name: "Ada Lovelace", Email: "ada@example.com", Phone: "(415) 555-2671",
		Street: "1 Analytical Way", City: "San Francisco", State: "California", Zip: "94105",
		Shares: "4000000", PreferredShares: "1000000",
		Vesting: "4yr with 1yr Cliff", Single: "N/A", Double: "N/A", VCD: "2022-01-15",
	},
	{
		ID: "sh-2", Name: "Charles Babbage", Email: "charles@example.com", Phone: "415.555.0100",
		Street: "2 Difference St", City: "New York", State: "New York", Zip: "10001",
		Shares: "3000000", PreferredShares: "0",
		Vesting: "Fully Vested", Single: "N/A", Double: "N/A",
	},
}

// fixtureRecords builds questionnaire answers the way the vendor exports
// them: the first stockholder's fields carry an _S1 suffix and later ones
// an explicit [N] repetition.
func fixtureRecords(holders ...stockholder) record.Records {
	if len(holders) == 0 {
		holders = defaultStockholders
	}

	records := record.Records{
		record.New("CompanyName", "Acme Robotics, Inc."),
		record.New("CompanyShortName", "Acme"),
		record.New("CompanyStreet", "500 Market St"),
		record.New("CompanyCity", "Wilmington"),
		record.New("CompanyState", "Delaware"),
		record.New("CompanyZip", "19801"),
		record.New("CompanyPhoneNumber", "(302) 555-0199"),
		record.New("NumberStockholders", strconv.Itoa(len(holders))),
		record.New("SharesAuthorized", "10000000"),
		record.New("ParValue", "0.00001"),
		record.New("PricePerShare", "0.0001"),
		record.New("FFPreferredSharesAuthorized", "2000000"),
		record.New("FFPreferredPricePerShare", "0.0001"),
		record.New("SOPYear", "2022-01-15"),
		record.New("SharesReservedStockPlan", "1000000"),
		record.New("StockholderInfoSame", "Paid With", "Vesting Commencement Date"),
		record.New("PaidWith_S1", "Cash"),
	}

	for i, h := range holders {
		fields := map[string]string{
			"id":                h.ID,
			"Stockholder":       h.Name,
			"EmailAddress":      h.Email,
			"PhoneNumber":       h.Phone,
			"StockholderStreet": h.Street,
			"StockholderCity":   h.City,
			"StockholderState":  h.State,
			"StockholderZip":    h.Zip,
			"Shares":            h.Shares,
			"FFPreferredShares": h.PreferredShares,
			"Vesting":           h.Vesting,
			"SingleTrigger":     h.Single,
			"DoubleTrigger":     h.Double,
		}
		if h.VCD != "" {
			fields["VCD"] = h.VCD
		}
		for _, name := range sortedKeys(fields) {
			if i == 0 {
				records = append(records, record.New(name+"_S1", fields[name]))
				continue
			}
			records = append(records, record.NewRepeated(name, i+1, fields[name]))
		}
	}
	return records
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
