package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/resilience"
)

// Config configures the NATS connection
type Config struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	// Retry governs the initial connect; nil uses resilience.DefaultRetryConfig
	Retry *resilience.RetryConfig
}

// Client wraps a NATS connection
type Client struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// Connect dials NATS, retrying transient failures. Once connected the client
// reconnects on its own.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if cfg.Name == "" {
		cfg.Name = "cuecam"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	logger = logger.With().Str("component", "bus").Logger()

	options := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	}

	var conn *nats.Conn
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		c, err := nats.Connect(cfg.URL, options...)
		if err != nil {
			logger.Debug().Err(err).Msg("NATS connect attempt failed")
			return err
		}
		conn = c
		return nil
	}, cfg.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("Connected to NATS")
	return &Client{conn: conn, logger: logger}, nil
}

// Close drains pending messages and closes the connection
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.logger.Info().Msg("Closing NATS connection")
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn().Err(err).Msg("NATS drain failed")
	}
	c.conn.Close()
}

// Healthy reports whether the connection is up
func (c *Client) Healthy(context.Context) (bool, error) {
	if c == nil || c.conn == nil {
		return false, errors.New("not connected")
	}
	if status := c.conn.Status(); status != nats.CONNECTED {
		return false, fmt.Errorf("nats connection %s", status)
	}
	return true, nil
}

// Conn exposes the underlying connection
func (c *Client) Conn() *nats.Conn {
	return c.conn
}
