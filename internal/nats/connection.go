// Package nats connects the conversion service to a NATS server.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wehubfusion/ce2ocf/pkg/logging"
)

// ConnectionConfig describes how the conversion service reaches its NATS
// server. MaxReconnects of -1 retries forever. Token wins over
// Username/Password when both are set.
type ConnectionConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	Token         string
	Username      string
	Password      string
}

// DefaultConnectionConfig returns the settings the ce2ocf service connects with
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:           url,
		Name:          "ce2ocf",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

func (c *ConnectionConfig) options(logger logging.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logging.F("error", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", logging.F("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	if c.Token != "" {
		opts = append(opts, nats.Token(c.Token))
	} else if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}

// Connect establishes a connection to NATS, giving up when ctx is done
func Connect(ctx context.Context, config *ConnectionConfig, logger logging.Logger) (*nats.Conn, error) {
	if config == nil {
		return nil, fmt.Errorf("connection config cannot be nil")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}
	logger = logging.OrNoOp(logger)

	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		conn, err := nats.Connect(config.URL, config.options(logger)...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// close a connection that completes after we gave up
		go func() {
			if res := <-resultCh; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}
		return res.conn, nil
	}
}

// Close drains the connection so in-flight requests finish, falling back to
// a hard close.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}

// IsConnected reports whether conn is usable
func IsConnected(conn *nats.Conn) bool {
	return conn != nil && conn.IsConnected()
}

// Subscriber adapts a connection to the queue-subscription shape the
// service consumes.
type Subscriber struct {
	Conn *nats.Conn
}

// Subscribe delivers messages on subject, load-balanced across queue, to ch.
func (s Subscriber) Subscribe(subject, queue string, ch chan *nats.Msg) (func() error, error) {
	sub, err := s.Conn.ChanQueueSubscribe(subject, queue, ch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub.Unsubscribe, nil
}

// Publish sends data to subject.
func (s Subscriber) Publish(subject string, data []byte) error {
	return s.Conn.Publish(subject, data)
}
