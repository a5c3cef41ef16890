package ocf

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/ce2ocf/pkg/datamap"
	"github.com/wehubfusion/ce2ocf/pkg/iteration"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

// Global override names set by the pipeline.
const (
	FormationDateVariable = "FORMATION_DATE"
	CurrencyVariable      = "CURRENCY_TYPE"
	SecExemptionVariable  = "SEC_EXEMPTION"

	DefaultCurrency     = "USD"
	DefaultSecExemption = "4(a)2"
)

// Document names one datamap-driven parse in the pipeline.
type Document string

const (
	DocIssuer              Document = "issuer"
	DocCommonStockClass    Document = "common_stock_class"
	DocPreferredStockClass Document = "preferred_stock_class"
	DocCommonLegend        Document = "common_stock_legend"
	DocPreferredLegend     Document = "preferred_stock_legend"
	DocStockPlan           Document = "stock_plan"
	DocStakeholders        Document = "stakeholders"
	DocCommonIssuances     Document = "common_stock_issuances"
	DocPreferredIssuances  Document = "preferred_stock_issuances"
	DocVestingEvents       Document = "vesting_events"
	DocVestingSchedules    Document = "vesting_schedules"
)

// Documents lists every document in pipeline order.
var Documents = []Document{
	DocIssuer,
	DocCommonLegend,
	DocPreferredLegend,
	DocCommonStockClass,
	DocPreferredStockClass,
	DocStockPlan,
	DocStakeholders,
	DocCommonIssuances,
	DocPreferredIssuances,
	DocVestingEvents,
	DocVestingSchedules,
}

// DocumentOptions customises one document.
type DocumentOptions struct {
	// Datamap replaces the embedded datamap
	Datamap string

	// PostProcessors are added on top of the defaults
	PostProcessors *datamap.Registry

	// Overrides win over the global overrides
	Overrides map[string]interface{}
}

// PipelineOptions configures one Translate call.
type PipelineOptions struct {
	// FormationDate defaults to today (UTC)
	FormationDate time.Time

	// Currency defaults to USD
	Currency string

	// GlobalOverrides are passed to every document and win over the
	// pipeline's own globals
	GlobalOverrides map[string]interface{}

	// PostProcessors are added to every document
	PostProcessors *datamap.Registry

	// MaxRepeatCount caps repeated blocks; zero keeps
	// datamap.DefaultMaxRepeatCount
	MaxRepeatCount int

	Policy    datamap.MissingPolicy
	Documents map[Document]DocumentOptions
}

// File is the body of one OCF file.
type File struct {
	FileType FileType      `json:"file_type"`
	Items    []interface{} `json:"items"`
}

// Result is a translated cap table.
type Result struct {
	Issuer       map[string]interface{}
	StockClasses File
	StockLegends File
	StockPlans   File
	Stakeholders File
	Transactions File
	VestingTerms File
	Valuations   File
}

// Pipeline translates questionnaire records into OCF documents.
type Pipeline struct {
	pool      *iteration.Pool
	logger    logging.Logger
	tracer    trace.Tracer
	generator *vesting.Generator
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithConcurrency bounds how many documents are parsed at once. 1 parses
// them sequentially.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		strategy := iteration.StrategyParallel
		if n == 1 {
			strategy = iteration.StrategySequential
		}
		p.pool = iteration.NewPool(iteration.Config{Strategy: strategy, MaxConcurrent: n})
	}
}

func WithPipelineLogger(logger logging.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logging.OrNoOp(logger)
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// WithGenerator sets the vesting terms generator.
func WithGenerator(g *vesting.Generator) PipelineOption {
	return func(p *Pipeline) {
		p.generator = g
	}
}

// NewPipeline creates a pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		pool:   iteration.NewPool(iteration.Config{Strategy: iteration.StrategyParallel}),
		logger: &logging.NoOpLogger{},
		tracer: otel.Tracer("ce2ocf/ocf"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Globals returns the overrides shared by every document.
func (o PipelineOptions) Globals() map[string]interface{} {
	formation := o.FormationDate
	if formation.IsZero() {
		formation = now()
	}
	currency := o.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	globals := map[string]interface{}{
		FormationDateVariable: formation.UTC().Format("2006-01-02"),
		CurrencyVariable:      currency,
		SecExemptionVariable:  DefaultSecExemption,
	}
	for k, v := range o.GlobalOverrides {
		globals[k] = v
	}
	return globals
}

func (p *Pipeline) parseOptions(opts PipelineOptions, globals map[string]interface{}, doc Document) []ParseOption {
	docOpts := opts.Documents[doc]

	reg := datamap.NewRegistry().Merge(opts.PostProcessors).Merge(docOpts.PostProcessors)
	return []ParseOption{
		WithOverrides(globals),
		WithOverrides(docOpts.Overrides),
		WithDatamap(docOpts.Datamap),
		WithPostProcessors(reg),
		WithPolicy(opts.Policy),
		WithMaxRepeatCount(opts.MaxRepeatCount),
		WithLogger(p.logger),
		WithVestingGenerator(p.generator),
	}
}

type parseFunc func(opts []ParseOption) (interface{}, error)

// Translate parses every document from records. Documents are independent
// and are parsed concurrently; the first failure cancels the rest.
func (p *Pipeline) Translate(ctx context.Context, records record.Records, opts PipelineOptions) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "ocf.Translate",
		trace.WithAttributes(attribute.Int("ce2ocf.records", len(records))))
	defer span.End()

	globals := opts.Globals()

	parsers := map[Document]parseFunc{
		DocIssuer: func(o []ParseOption) (interface{}, error) { return ParseIssuer(records, o...) },
		DocCommonLegend: func(o []ParseOption) (interface{}, error) {
			return ParseStockLegend(records, Common, o...)
		},
		DocPreferredLegend: func(o []ParseOption) (interface{}, error) {
			return ParseStockLegend(records, Preferred, o...)
		},
		DocCommonStockClass: func(o []ParseOption) (interface{}, error) {
			return ParseStockClass(records, Common, o...)
		},
		DocPreferredStockClass: func(o []ParseOption) (interface{}, error) {
			return ParseStockClass(records, Preferred, o...)
		},
		DocStockPlan:          func(o []ParseOption) (interface{}, error) { return ParseStockPlan(records, o...) },
		DocStakeholders:       func(o []ParseOption) (interface{}, error) { return ParseStakeholders(records, o...) },
		DocCommonIssuances:    func(o []ParseOption) (interface{}, error) { return parseCommonIssuances(records, o) },
		DocPreferredIssuances: func(o []ParseOption) (interface{}, error) { return parsePreferredIssuances(records, o) },
		DocVestingEvents: func(o []ParseOption) (interface{}, error) {
			events, err := ParseVestingEvents(records, o...)
			if err != nil {
				return nil, err
			}
			items := make([]interface{}, len(events))
			for i, e := range events {
				items[i] = e
			}
			return items, nil
		},
		DocVestingSchedules: func(o []ParseOption) (interface{}, error) { return ParseVestingSchedules(records, o...) },
	}

	jobs := make([]iteration.Job, len(Documents))
	for i, doc := range Documents {
		doc, parse := doc, parsers[doc]
		parseOpts := p.parseOptions(opts, globals, doc)
		jobs[i] = iteration.Job{
			Name: string(doc),
			Run: func(ctx context.Context) (interface{}, error) {
				return p.traced(ctx, doc, func() (interface{}, error) { return parse(parseOpts) })
			},
		}
	}

	results, err := p.pool.Run(ctx, jobs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("translation failed", logging.F("error", err))
		return nil, err
	}

	out := make(map[Document]interface{}, len(Documents))
	for i, doc := range Documents {
		out[doc] = results[i]
	}
	return assemble(out)
}

func (p *Pipeline) traced(ctx context.Context, doc Document, fn func() (interface{}, error)) (interface{}, error) {
	_, span := p.tracer.Start(ctx, "ocf.parse",
		trace.WithAttributes(attribute.String("ce2ocf.document", string(doc))))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	v, err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if items, ok := v.([]interface{}); ok {
		span.SetAttributes(attribute.Int("ce2ocf.items", len(items)))
	}
	p.logger.Debug("parsed document",
		logging.F("document", string(doc)), logging.F("duration", time.Since(start)))
	return v, nil
}

func asObject(doc Document, v interface{}) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: produced %T, want an object", doc, v)
	}
	return m, nil
}

func asList(doc Document, v interface{}) ([]interface{}, error) {
	l, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: produced %T, want a list", doc, v)
	}
	return l, nil
}

// assemble orders the parsed documents into OCF files: preferred before
// common for legends and classes, and issuances before vesting starts in
// the transactions file.
func assemble(docs map[Document]interface{}) (*Result, error) {
	objects := make(map[Document]map[string]interface{})
	for _, doc := range []Document{DocIssuer, DocCommonLegend, DocPreferredLegend, DocCommonStockClass, DocPreferredStockClass, DocStockPlan} {
		m, err := asObject(doc, docs[doc])
		if err != nil {
			return nil, err
		}
		objects[doc] = m
	}
	lists := make(map[Document][]interface{})
	for _, doc := range []Document{DocStakeholders, DocCommonIssuances, DocPreferredIssuances, DocVestingEvents, DocVestingSchedules} {
		l, err := asList(doc, docs[doc])
		if err != nil {
			return nil, err
		}
		lists[doc] = l
	}

	transactions := make([]interface{}, 0,
		len(lists[DocCommonIssuances])+len(lists[DocPreferredIssuances])+len(lists[DocVestingEvents]))
	transactions = append(transactions, lists[DocCommonIssuances]...)
	transactions = append(transactions, lists[DocPreferredIssuances]...)
	transactions = append(transactions, lists[DocVestingEvents]...)

	return &Result{
		Issuer:       objects[DocIssuer],
		StockLegends: File{FileType: FileStockLegends, Items: []interface{}{objects[DocPreferredLegend], objects[DocCommonLegend]}},
		StockClasses: File{FileType: FileStockClasses, Items: []interface{}{objects[DocPreferredStockClass], objects[DocCommonStockClass]}},
		StockPlans:   File{FileType: FileStockPlans, Items: []interface{}{objects[DocStockPlan]}},
		Stakeholders: File{FileType: FileStakeholders, Items: lists[DocStakeholders]},
		Transactions: File{FileType: FileTransactions, Items: transactions},
		VestingTerms: File{FileType: FileVestingTerms, Items: lists[DocVestingSchedules]},
		Valuations:   File{FileType: FileValuations, Items: []interface{}{}},
	}, nil
}
