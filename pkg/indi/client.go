// Package indi controls a mount driver loaded in an INDI server. The server
// is only probed over TCP; driver properties are changed through the
// indi_setprop and indi_getprop tools that ship with INDI.
package indi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultHost   = "localhost"
	DefaultPort   = 7624
	DefaultDriver = "indi_lx200_OnStep"

	// ProbeTimeout bounds the TCP liveness check.
	ProbeTimeout = 1 * time.Second

	// ConnectSettleDelay is the time the driver needs to reach the hardware
	// after CONNECT=On was accepted.
	ConnectSettleDelay = 2 * time.Second

	commandTimeout = 10 * time.Second

	setPropTool = "indi_setprop"
	getPropTool = "indi_getprop"
)

var ErrServerDown = errors.New("INDI server not running")

// Runner runs an external command and returns its standard output. A
// non-zero exit status is an error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Option func(*Client)

func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client checks an INDI server and switches the connection of one of its
// drivers. Server liveness is checked again on every call.
type Client struct {
	host string
	port int

	runner Runner
	dial   DialFunc
	sleep  func(time.Duration)
	logger log.FieldLogger

	connected bool
}

func NewClient(host string, port int, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}

	dialer := &net.Dialer{Timeout: ProbeTimeout}
	c := &Client{
		host:   host,
		port:   port,
		runner: ExecRunner{},
		dial:   dialer.DialContext,
		sleep:  time.Sleep,
		logger: log.WithField("device", "indi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connected is the best-effort flag left by the last ConnectMount or
// DisconnectMount on this client. MountStatus asks the server instead.
func (c *Client) Connected() bool {
	return c.connected
}

// IsServerRunning reports whether the server accepts TCP connections.
func (c *Client) IsServerRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", c.Address())
	if err != nil {
		c.logger.Debugf("INDI server at %s not reachable: %v", c.Address(), err)
		return false
	}
	conn.Close()
	return true
}

// ConnectMount switches the driver's CONNECTION property on and waits for
// the hardware to settle.
func (c *Client) ConnectMount(ctx context.Context, driver string) bool {
	driver = resolveDriver(driver)
	if err := c.setConnection(ctx, driver, true); err != nil {
		c.logger.Errorf("Failed to connect %s: %v", driver, err)
		return false
	}

	c.sleep(ConnectSettleDelay)
	c.connected = true
	c.logger.Infof("Connected %s", driver)
	return true
}

// DisconnectMount switches the driver's CONNECTION property off.
func (c *Client) DisconnectMount(ctx context.Context, driver string) bool {
	driver = resolveDriver(driver)
	if err := c.setConnection(ctx, driver, false); err != nil {
		c.logger.Errorf("Failed to disconnect %s: %v", driver, err)
		return false
	}

	c.connected = false
	c.logger.Infof("Disconnected %s", driver)
	return true
}

// MountStatus reports whether the driver is connected to its hardware.
// known is false when the server is down or the property cannot be read.
func (c *Client) MountStatus(ctx context.Context, driver string) (connected, known bool) {
	driver = resolveDriver(driver)
	if !c.IsServerRunning(ctx) {
		return false, false
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	out, err := c.runner.Run(ctx, getPropTool, driver+".CONNECTION")
	if err != nil {
		c.logger.Errorf("Failed to read connection of %s: %v", driver, err)
		return false, false
	}
	return strings.Contains(string(out), "CONNECT=On"), true
}

func (c *Client) setConnection(ctx context.Context, driver string, on bool) error {
	if !c.IsServerRunning(ctx) {
		return ErrServerDown
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	_, err := c.runner.Run(ctx, setPropTool, connectionProperty(driver, on))
	return err
}

func connectionProperty(driver string, on bool) string {
	value := "Off"
	if on {
		value = "On"
	}
	return fmt.Sprintf("%s.CONNECTION.CONNECT=%s", driver, value)
}

func resolveDriver(driver string) string {
	if driver == "" {
		return DefaultDriver
	}
	return driver
}
