package ocf

import (
	"strconv"
	"strings"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/template"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

// ParserVersionVariable is the override every parser sets to ParserVersion.
const ParserVersionVariable = "PARSER_VERSION"

type parseConfig struct {
	datamapPath    string
	overrides      map[string]interface{}
	postProcessors *datamap.Registry
	noDefaults     bool
	policy         datamap.MissingPolicy
	logger         logging.Logger
	generator      *vesting.Generator
	maxRepeat      int
}

// ParseOption configures one parser call.
type ParseOption func(*parseConfig)

// WithDatamap reads the datamap from path instead of the embedded default.
func WithDatamap(path string) ParseOption {
	return func(c *parseConfig) {
		c.datamapPath = path
	}
}

// WithOverrides sets values that replace record lookups. Later calls add to
// earlier ones.
func WithOverrides(overrides map[string]interface{}) ParseOption {
	return func(c *parseConfig) {
		if c.overrides == nil {
			c.overrides = make(map[string]interface{}, len(overrides))
		}
		for k, v := range overrides {
			c.overrides[k] = v
		}
	}
}

// WithPostProcessors adds post-processors on top of DefaultRegistry. Entries
// for the same type and field replace the defaults.
func WithPostProcessors(reg *datamap.Registry) ParseOption {
	return func(c *parseConfig) {
		c.postProcessors = reg
	}
}

// WithoutDefaultPostProcessors starts from an empty registry.
func WithoutDefaultPostProcessors() ParseOption {
	return func(c *parseConfig) {
		c.noDefaults = true
	}
}

// WithPolicy sets the missing-variable policy. The default is PolicyOmit.
func WithPolicy(p datamap.MissingPolicy) ParseOption {
	return func(c *parseConfig) {
		c.policy = p
	}
}

func WithLogger(logger logging.Logger) ParseOption {
	return func(c *parseConfig) {
		c.logger = logger
	}
}

// WithMaxRepeatCount caps repeated blocks. Zero keeps
// datamap.DefaultMaxRepeatCount.
func WithMaxRepeatCount(n int) ParseOption {
	return func(c *parseConfig) {
		c.maxRepeat = n
	}
}

// WithVestingGenerator sets the generator used for vesting terms.
func WithVestingGenerator(g *vesting.Generator) ParseOption {
	return func(c *parseConfig) {
		c.generator = g
	}
}

func newParseConfig(opts []ParseOption) *parseConfig {
	c := &parseConfig{policy: datamap.PolicyOmit}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNoOp(c.logger)
	return c
}

func (c *parseConfig) registry() *datamap.Registry {
	reg := datamap.NewRegistry()
	if !c.noDefaults {
		reg = DefaultRegistry(c.generator)
	}
	return reg.Merge(c.postProcessors)
}

// traverse loads the datamap and resolves it against records.
func traverse(records record.Records, d *datamap.Descriptor, defaultPath string, c *parseConfig) (interface{}, error) {
	node, err := loadDatamap(c.datamapPath, defaultPath, d)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]interface{}, len(c.overrides)+1)
	overrides[ParserVersionVariable] = ParserVersion
	for k, v := range c.overrides {
		overrides[k] = v
	}

	t := datamap.NewTraverser(records,
		datamap.WithRegistry(c.registry()),
		datamap.WithPolicy(c.policy),
		datamap.WithLogger(c.logger),
		datamap.WithMaxRepeatCount(c.maxRepeat),
	)
	return t.Traverse(node, datamap.Request{Overrides: overrides})
}

func parseObject(records record.Records, d *datamap.Descriptor, defaultPath string, opts []ParseOption) (map[string]interface{}, error) {
	c := newParseConfig(opts)
	v, err := traverse(records, d, defaultPath, c)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, cerrors.StructuralMismatch("%s datamap produced %T, want an object", d.Type, v)
	}
	return obj, nil
}

func parseList(records record.Records, d *datamap.Descriptor, defaultPath string, c *parseConfig) ([]interface{}, error) {
	v, err := traverse(records, d, defaultPath, c)
	if err != nil {
		return nil, err
	}
	var items []interface{}
	switch val := v.(type) {
	case nil:
		return []interface{}{}, nil
	case []interface{}:
		items = val
	default:
		return nil, cerrors.StructuralMismatch("%s datamap produced %T, want a list", d.Type, v)
	}

	out := make([]interface{}, 0, len(items))
	for i, item := range items {
		if item == nil {
			c.logger.Debug("skipping empty repetition", logging.F("type", string(d.Type)), logging.F("iteration", i+1))
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// ParseIssuer builds the issuer object.
func ParseIssuer(records record.Records, opts ...ParseOption) (map[string]interface{}, error) {
	return parseObject(records, IssuerDescriptor, IssuerDatamap, opts)
}

// ParseStockClass builds the common or founder preferred stock class.
func ParseStockClass(records record.Records, kind ClassKind, opts ...ParseOption) (map[string]interface{}, error) {
	path, err := kindDatamap(kind, CommonStockClassDatamap, PreferredStockClassDatamap)
	if err != nil {
		return nil, err
	}
	return parseObject(records, StockClassDescriptor, path, opts)
}

// ParseStockLegend builds the common or founder preferred legend template.
func ParseStockLegend(records record.Records, kind ClassKind, opts ...ParseOption) (map[string]interface{}, error) {
	path, err := kindDatamap(kind, CommonLegendDatamap, PreferredLegendDatamap)
	if err != nil {
		return nil, err
	}
	return parseObject(records, StockLegendDescriptor, path, opts)
}

func kindDatamap(kind ClassKind, common, preferred string) (string, error) {
	k, err := ParseClassKind(string(kind))
	if err != nil {
		return "", err
	}
	if k == Preferred {
		return preferred, nil
	}
	return common, nil
}

// ParseStockPlan builds the stock plan.
func ParseStockPlan(records record.Records, opts ...ParseOption) (map[string]interface{}, error) {
	return parseObject(records, StockPlanDescriptor, StockPlanDatamap, opts)
}

// ParseStakeholders builds one stakeholder per stockholder.
func ParseStakeholders(records record.Records, opts ...ParseOption) ([]interface{}, error) {
	return parseList(records, RepeatableStakeholdersDescriptor, StakeholdersDatamap, newParseConfig(opts))
}

// ParseStockIssuances builds the common issuances, which may vest, followed
// by the founder preferred issuances, which are fully vested. Preferred
// issuances without a positive quantity are left out.
func ParseStockIssuances(records record.Records, common, preferred []ParseOption) ([]interface{}, error) {
	commonIssuances, err := parseCommonIssuances(records, common)
	if err != nil {
		return nil, err
	}
	prefIssuances, err := parsePreferredIssuances(records, preferred)
	if err != nil {
		return nil, err
	}
	return append(commonIssuances, prefIssuances...), nil
}

func parseCommonIssuances(records record.Records, opts []ParseOption) ([]interface{}, error) {
	return parseList(records, RepeatableVestingStockIssuancesDescriptor, VestingIssuancesDatamap, newParseConfig(opts))
}

func parsePreferredIssuances(records record.Records, opts []ParseOption) ([]interface{}, error) {
	c := newParseConfig(opts)
	items, err := parseList(records, RepeatableFullyVestedStockIssuancesDescriptor, FullyVestedIssuanceDatamap, c)
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		issuance, ok := item.(map[string]interface{})
		if !ok || !positiveQuantity(issuance["quantity"]) {
			c.logger.Debug("skipping preferred issuance without shares",
				logging.F("security_id", securityID(item)))
			continue
		}
		out = append(out, issuance)
	}
	return out, nil
}

func positiveQuantity(v interface{}) bool {
	s := strings.TrimSpace(template.Stringify(v))
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f > 0
}

func securityID(item interface{}) interface{} {
	if m, ok := item.(map[string]interface{}); ok {
		return m["security_id"]
	}
	return nil
}

// ParseVestingSchedules builds the vesting terms for every stockholder's
// schedule and trigger choices, de-duplicated by id in first-seen order.
// Fully vested stockholders have no terms.
func ParseVestingSchedules(records record.Records, opts ...ParseOption) ([]interface{}, error) {
	c := newParseConfig(opts)
	items, err := parseList(records, RepeatableVestingScheduleDriversDescriptor, VestingDriversDatamap, c)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		inputs, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		terms := inputs[vesting.DriverSchedule]
		id, ok := termsID(terms)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, terms)
	}
	return out, nil
}

func termsID(v interface{}) (string, bool) {
	switch t := v.(type) {
	case *vesting.Terms:
		if t == nil {
			return "", false
		}
		return t.ID, true
	case map[string]interface{}:
		id, ok := t["id"].(string)
		return id, ok
	default:
		return "", false
	}
}

// StartIssuanceID is the security id of a stockholder's common issuance.
func StartIssuanceID(stockholderID string) string {
	return "COMMON.ISSUANCE." + stockholderID
}

// ParseVestingEvents builds a vesting start transaction for the common
// issuance of every stockholder whose shares vest. Under PolicyAbort a
// driver without a usable commencement date is an error; otherwise it is
// logged and skipped.
func ParseVestingEvents(records record.Records, opts ...ParseOption) ([]vesting.StartEvent, error) {
	c := newParseConfig(opts)
	items, err := parseList(records, RepeatableVestingEventDriversDescriptor, VestingDriversDatamap, c)
	if err != nil {
		return nil, err
	}

	events := make([]vesting.StartEvent, 0, len(items))
	for _, item := range items {
		inputs, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		drivers, ok := inputs[vesting.DriverSchedule].(map[string]interface{})
		if !ok {
			continue
		}

		schedule, single, double := vesting.Choices(drivers)
		stockholder := template.Stringify(drivers[vesting.DriverStockholderID])
		switch schedule {
		case string(vesting.ScheduleFullyVested):
			c.logger.Debug("no vesting start for fully vested stockholder", logging.F("stockholder", stockholder))
			continue
		case "":
			c.logger.Warn("stockholder has no vesting schedule", logging.F("stockholder", stockholder))
			continue
		}

		commencement := template.Stringify(drivers[vesting.DriverCommencement])
		event, err := vesting.NewStartEvent(commencement, StartIssuanceID(stockholder),
			vesting.StartID(vesting.ScheduleID(schedule, single, double)))
		if err != nil {
			if c.policy == datamap.PolicyAbort {
				return nil, err
			}
			c.logger.Warn("skipping vesting start", logging.F("stockholder", stockholder), logging.F("error", err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
