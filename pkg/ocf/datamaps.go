package ocf

import (
	"embed"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
)

//go:embed datamaps/*.json
var defaultDatamaps embed.FS

// Embedded default datamaps.
const (
	IssuerDatamap              = "datamaps/issuer.json"
	CommonStockClassDatamap    = "datamaps/stock_class_common.json"
	PreferredStockClassDatamap = "datamaps/stock_class_preferred.json"
	CommonLegendDatamap        = "datamaps/stock_legend_common.json"
	PreferredLegendDatamap     = "datamaps/stock_legend_preferred.json"
	StockPlanDatamap           = "datamaps/stock_plan.json"
	StakeholdersDatamap        = "datamaps/stakeholders.json"
	VestingIssuancesDatamap    = "datamaps/issuances_vesting.json"
	FullyVestedIssuanceDatamap = "datamaps/issuances_fully_vested.json"
	VestingDriversDatamap      = "datamaps/vesting_drivers.json"
)

// loadDatamap reads the datamap at path, or the embedded defaultPath when
// path is empty, and binds it to d.
func loadDatamap(path, defaultPath string, d *datamap.Descriptor) (datamap.Node, error) {
	if path != "" {
		return datamap.LoadFile(path, d)
	}
	return datamap.LoadFS(defaultDatamaps, defaultPath, d)
}
