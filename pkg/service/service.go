package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wehubfusion/ce2ocf/pkg/concurrency"
	"github.com/wehubfusion/ce2ocf/pkg/logging"
)

// Transport delivers requests and publishes replies. internal/nats.Subscriber
// implements it over a NATS connection.
type Transport interface {
	Subscribe(subject, queue string, ch chan *nats.Msg) (func() error, error)
	Publish(subject string, data []byte) error
}

// Config configures a Service.
type Config struct {
	Subject string
	Queue   string
	Workers int
	Timeout time.Duration
}

// Service answers conversion requests received on a subject.
type Service struct {
	converter *Converter
	transport Transport
	config    Config
	limiter   *concurrency.Limiter
	logger    logging.Logger
	hub       *sentry.Hub
	tracer    trace.Tracer
}

// New creates a service. hub may be nil to disable error reporting.
func New(converter *Converter, transport Transport, config Config, logger logging.Logger, hub *sentry.Hub) (*Service, error) {
	if converter == nil {
		return nil, errors.New("converter cannot be nil")
	}
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if config.Subject == "" {
		return nil, errors.New("subject cannot be empty")
	}
	if config.Workers <= 0 {
		return nil, errors.New("workers must be greater than 0")
	}
	if config.Timeout <= 0 {
		return nil, errors.New("timeout must be greater than 0")
	}

	return &Service{
		converter: converter,
		transport: transport,
		config:    config,
		limiter:   concurrency.NewLimiter(config.Workers),
		logger:    logging.OrNoOp(logger),
		hub:       hub,
		tracer:    otel.Tracer("ce2ocf/service"),
	}, nil
}

// Run subscribes and serves requests until ctx is done. At most
// Config.Workers requests are converted at once. Run waits for in-flight
// requests before it returns ctx.Err().
func (s *Service) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, s.config.Workers)
	unsubscribe, err := s.transport.Subscribe(s.config.Subject, s.config.Queue, msgs)
	if err != nil {
		return err
	}
	s.logger.Info("Conversion service started",
		logging.F("subject", s.config.Subject),
		logging.F("queue", s.config.Queue),
		logging.F("workers", s.config.Workers))

	defer func() {
		if err := unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", logging.F("error", err.Error()))
		}
		s.limiter.Wait()
		stats := s.limiter.Stats()
		s.logger.Info("Conversion service stopped",
			logging.F("handled", stats.Acquired),
			logging.F("peak_concurrent", stats.PeakConcurrent))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			if err := s.limiter.Go(ctx, func() { s.process(ctx, msg) }); err != nil {
				return ctx.Err()
			}
		}
	}
}

func (s *Service) process(ctx context.Context, msg *nats.Msg) {
	ctx, span := s.tracer.Start(ctx, "service.process",
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Subject),
			attribute.Int("messaging.message.body.size", len(msg.Data)),
		))
	defer span.End()

	processCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.handle(processCtx, msg.Data)
	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.String("ce2ocf.request_id", reply.RequestID),
		attribute.Int64("processing.duration_ms", elapsed.Milliseconds()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Conversion failed",
			logging.F("request_id", reply.RequestID),
			logging.F("duration", elapsed),
			logging.F("error", err.Error()))
		if !IsClientError(err) {
			s.report(reply.RequestID, msg.Subject, err)
		}
	} else {
		span.SetStatus(codes.Ok, "converted")
		s.logger.Info("Conversion succeeded",
			logging.F("request_id", reply.RequestID),
			logging.F("duration", elapsed),
			logging.F("files", len(reply.Files)))
	}

	if msg.Reply == "" {
		s.logger.Warn("Request has no reply subject", logging.F("request_id", reply.RequestID))
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Failed to encode reply", logging.F("error", err.Error()))
		return
	}
	if err := s.transport.Publish(msg.Reply, data); err != nil {
		s.logger.Error("Failed to publish reply",
			logging.F("request_id", reply.RequestID),
			logging.F("error", err.Error()))
	}
}

// handle runs the converter, turning a panic into an error reply so one
// request cannot take the service down.
func (s *Service) handle(ctx context.Context, data []byte) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrConversionPanicked, r)
			if reply.RequestID == "" {
				reply.RequestID = uuid.NewString()
			}
			reply = Reply{RequestID: reply.RequestID, Error: err.Error()}
			s.logger.Error("Recovered from panic",
				logging.F("request_id", reply.RequestID),
				logging.F("panic", fmt.Sprint(r)),
				logging.F("stack", string(debug.Stack())))
		}
	}()
	return s.converter.Handle(ctx, data)
}

func (s *Service) report(requestID, subject string, err error) {
	if s.hub == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", requestID)
		scope.SetTag("subject", subject)
		s.hub.CaptureException(err)
	})
}
