// Package service converts questionnaire answers into OCF packages on
// request, either directly or as a NATS request/reply service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/ce2ocf/pkg/concurrency"
	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/ocf"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/storage"
	"github.com/wehubfusion/ce2ocf/pkg/vesting"
)

var (
	// ErrInvalidRequest indicates a request that could not be decoded
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUploadUnavailable indicates an upload request without a configured store
	ErrUploadUnavailable = errors.New("archive uploads are not configured")

	// ErrConversionPanicked wraps a panic recovered while handling a request
	ErrConversionPanicked = errors.New("conversion panicked")
)

// Request asks for one conversion. Exactly one of Records, Envelope and
// AnswersXML carries the answers; Records wins when several are set.
type Request struct {
	Records    record.Records  `json:"records,omitempty"`
	Envelope   json.RawMessage `json:"envelope,omitempty"`
	AnswersXML string          `json:"answers_xml,omitempty"`

	// FormationDate is the issuer's formation date; today when empty
	FormationDate string `json:"formation_date,omitempty"`

	Currency  string                 `json:"currency,omitempty"`
	Overrides map[string]interface{} `json:"overrides,omitempty"`
	Comments  []string               `json:"comments,omitempty"`

	// Upload stores the zipped package and returns its URL
	Upload bool `json:"upload,omitempty"`
}

// FileInfo describes one file of the package in a reply.
type FileInfo struct {
	FileName string `json:"file_name"`
	MD5      string `json:"md5"`
}

// Reply answers a Request.
type Reply struct {
	RequestID        string                    `json:"request_id"`
	Files            map[ocf.FileType]FileInfo `json:"files,omitempty"`
	ArchiveURL       string                    `json:"archive_url,omitempty"`
	ValidationErrors map[ocf.FileType][]string `json:"validation_errors,omitempty"`
	Error            string                    `json:"error,omitempty"`
}

// Conversion is the outcome of a successful Convert.
type Conversion struct {
	RequestID  string
	Package    *ocf.Packaged
	Validation map[ocf.FileType]ocf.ValidationResult
	ArchiveURL string
}

// Converter runs the translate, package, validate and upload steps.
type Converter struct {
	pipeline  *ocf.Pipeline
	options   ocf.PipelineOptions
	comments  []string
	validator *ocf.Validator
	store     storage.ArchiveStore
	breaker   *concurrency.CircuitBreaker
	logger    logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithOptions sets the pipeline options every request starts from.
func WithOptions(opts ocf.PipelineOptions) ConverterOption {
	return func(c *Converter) { c.options = opts }
}

// WithComments adds manifest comments to every package.
func WithComments(comments ...string) ConverterOption {
	return func(c *Converter) { c.comments = append(c.comments, comments...) }
}

// WithValidator checks every package against the OCF schemas.
func WithValidator(v *ocf.Validator) ConverterOption {
	return func(c *Converter) { c.validator = v }
}

// WithStore enables uploads. Uploads fail fast after repeated store errors.
func WithStore(store storage.ArchiveStore) ConverterOption {
	return func(c *Converter) { c.store = store }
}

// WithBreaker replaces the breaker guarding the store.
func WithBreaker(cb *concurrency.CircuitBreaker) ConverterOption {
	return func(c *Converter) { c.breaker = cb }
}

// WithLogger sets the converter logger.
func WithLogger(logger logging.Logger) ConverterOption {
	return func(c *Converter) { c.logger = logging.OrNoOp(logger) }
}

// NewConverter creates a converter around pipeline.
func NewConverter(pipeline *ocf.Pipeline, opts ...ConverterOption) *Converter {
	c := &Converter{
		pipeline: pipeline,
		breaker:  concurrency.NewCircuitBreaker(5, 30*time.Second),
		logger:   &logging.NoOpLogger{},
		tracer:   otel.Tracer("ce2ocf/service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = ocf.NewPipeline(ocf.WithPipelineLogger(c.logger))
	}
	return c
}

// DecodeRequest parses a JSON request body.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &req, nil
}

// SourceRecords returns the answers carried by the request.
func (r *Request) SourceRecords() (record.Records, error) {
	switch {
	case len(r.Records) > 0:
		return r.Records.Normalize(), nil
	case len(r.Envelope) > 0:
		return record.FromEnvelope(r.Envelope)
	case r.AnswersXML != "":
		return record.FromAnswersXML(strings.NewReader(r.AnswersXML))
	default:
		return nil, fmt.Errorf("%w: request carries no records", ErrInvalidRequest)
	}
}

func (c *Converter) requestOptions(req *Request) (ocf.PipelineOptions, error) {
	opts := c.options
	if req.FormationDate != "" {
		date, err := vesting.ParseDate(req.FormationDate)
		if err != nil {
			return opts, fmt.Errorf("%w: formation_date: %v", ErrInvalidRequest, err)
		}
		opts.FormationDate = date
	}
	if req.Currency != "" {
		opts.Currency = req.Currency
	}
	if len(req.Overrides) > 0 {
		merged := make(map[string]interface{}, len(opts.GlobalOverrides)+len(req.Overrides))
		for k, v := range opts.GlobalOverrides {
			merged[k] = v
		}
		for k, v := range req.Overrides {
			merged[k] = v
		}
		opts.GlobalOverrides = merged
	}
	return opts, nil
}

// Convert runs one request. A package that fails validation is returned
// together with an error wrapping ErrValidationFailed.
func (c *Converter) Convert(ctx context.Context, req *Request) (*Conversion, error) {
	conv := &Conversion{RequestID: uuid.NewString()}

	ctx, span := c.tracer.Start(ctx, "service.Convert",
		trace.WithAttributes(
			attribute.String("ce2ocf.request_id", conv.RequestID),
			attribute.Bool("ce2ocf.upload", req.Upload),
		))
	defer span.End()

	fail := func(err error) (*Conversion, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return conv, err
	}

	records, err := req.SourceRecords()
	if err != nil {
		return fail(err)
	}
	opts, err := c.requestOptions(req)
	if err != nil {
		return fail(err)
	}

	result, err := c.pipeline.Translate(ctx, records, opts)
	if err != nil {
		return fail(err)
	}

	comments := append(append([]string{}, c.comments...), req.Comments...)
	conv.Package, err = ocf.Package(result, comments...)
	if err != nil {
		return fail(err)
	}

	if c.validator != nil {
		conv.Validation, err = c.validator.ValidatePackage(conv.Package)
		if err != nil {
			return fail(err)
		}
	}

	if req.Upload {
		conv.ArchiveURL, err = c.upload(ctx, conv, result.Issuer)
		if err != nil {
			return fail(err)
		}
	}

	span.SetStatus(codes.Ok, "converted")
	return conv, nil
}

func (c *Converter) upload(ctx context.Context, conv *Conversion, issuer map[string]interface{}) (string, error) {
	if c.store == nil {
		return "", ErrUploadUnavailable
	}
	archive, err := ocf.Archive(conv.Package.Names())
	if err != nil {
		return "", err
	}

	legalName, _ := issuer["legal_name"].(string)
	name := storage.ArchiveName(legalName, c.now())
	metadata := map[string]string{
		"request_id":  conv.RequestID,
		"ocf_version": ocf.Version,
	}

	var url string
	err = c.breaker.Execute(func() error {
		var putErr error
		url, putErr = c.store.Put(ctx, name, archive, metadata)
		return putErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	c.logger.Info("Uploaded OCF archive",
		logging.F("request_id", conv.RequestID),
		logging.F("blob", name),
		logging.F("size", len(archive)))
	return url, nil
}

// Handle decodes a request body, converts it and builds the reply. Failures
// are reported in Reply.Error.
func (c *Converter) Handle(ctx context.Context, data []byte) (Reply, error) {
	req, err := DecodeRequest(data)
	if err != nil {
		return Reply{RequestID: uuid.NewString(), Error: err.Error()}, err
	}

	conv, err := c.Convert(ctx, req)
	reply := Reply{RequestID: conv.RequestID}
	if conv.Package != nil {
		reply.Files = make(map[ocf.FileType]FileInfo, len(conv.Package.Files))
		for ft, f := range conv.Package.Files {
			reply.Files[ft] = FileInfo{FileName: f.FileName, MD5: f.MD5}
		}
	}
	for ft, r := range conv.Validation {
		if r.Valid() {
			continue
		}
		if reply.ValidationErrors == nil {
			reply.ValidationErrors = make(map[ocf.FileType][]string)
		}
		reply.ValidationErrors[ft] = r.Errors
	}
	reply.ArchiveURL = conv.ArchiveURL
	if err != nil {
		reply.Error = err.Error()
	}
	return reply, err
}

// IsClientError reports whether err was caused by the request rather than by
// the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, cerrors.ErrInvalidRecords) ||
		cerrors.IsVariableNotFound(err) ||
		errors.Is(err, cerrors.ErrUnsupportedVesting)
}

// SortedFileTypes returns the reply's file types in a stable order.
func (r Reply) SortedFileTypes() []ocf.FileType {
	out := make([]ocf.FileType, 0, len(r.Files))
	for ft := range r.Files {
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
