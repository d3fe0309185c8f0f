// Package scpi implements a minimal SCPI-over-TCP client for bench
// instruments that speak the usual line-oriented command/response dialect
// (R&S, Keysight raw socket servers on port 5025).
package scpi

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultDialTimeout = 3 * time.Second
	defaultIOTimeout   = 30 * time.Second
)

// Client is a synchronous SCPI session over a single TCP connection.
// Every exchange is blocking request/response; the client is not safe for
// concurrent use and is not meant to be — instrument state is global.
type Client struct {
	addr    string
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Client during Dial.
type Option func(*Client)

// WithTimeout sets the per-exchange I/O deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger routes client logging to the given logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Dial connects to an instrument's SCPI socket. The initial connect is
// retried with bounded exponential backoff, since bench instruments are
// routinely still booting their firmware when a campaign starts.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c := &Client{
		addr:    addr,
		timeout: defaultIOTimeout,
		logger:  log.With().Str("component", "scpi").Str("addr", addr).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	d := net.Dialer{Timeout: defaultDialTimeout}
	op := func() error {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			c.logger.Debug().Err(err).Msg("connect attempt failed")
			return err
		}
		c.conn = conn
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("connect to SCPI instrument at %s: %w", addr, err)
	}

	c.reader = bufio.NewReader(c.conn)
	c.logger.Debug().Msg("connected")
	return c, nil
}

// Write sends a single command line without expecting a reply.
func (c *Client) Write(cmd string) error {
	if c.conn == nil {
		return fmt.Errorf("scpi client not connected")
	}
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("write %q to %s: %w", cmd, c.addr, err)
	}
	return nil
}

// Query sends a command line and returns the single-line reply, trimmed.
func (c *Client) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q from %s: %w", cmd, c.addr, err)
	}
	return strings.TrimSpace(line), nil
}

// QuerySync sends a command with an appended *OPC? and waits for the
// completion reply, serializing the instrument's command pipeline.
func (c *Client) QuerySync(cmd string) error {
	reply, err := c.Query(cmd + "; *OPC?")
	if err != nil {
		return err
	}
	if reply != "1" {
		c.logger.Warn().Str("cmd", cmd).Str("reply", reply).Msg("unexpected *OPC? reply")
	}
	return nil
}

// QueryFloat queries a numeric result. A transport failure is returned as an
// error; a syntactically valid exchange whose payload does not parse as a
// float yields NaN with no error, so one corrupted field cannot sink a whole
// measurement record.
func (c *Client) QueryFloat(cmd string) (float64, error) {
	reply, err := c.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		c.logger.Warn().Str("cmd", cmd).Str("reply", reply).Msg("non-numeric reply, substituting NaN")
		return math.NaN(), nil
	}
	return v, nil
}

// Addr returns the remote address the client was dialed against.
func (c *Client) Addr() string { return c.addr }

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("close SCPI connection to %s: %w", c.addr, err)
	}
	return nil
}
