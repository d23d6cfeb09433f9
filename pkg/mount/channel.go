package mount

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"oatcontrol/pkg/config"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultDevice   = "/dev/serial/by-id/usb-Raspberry_Pi_Pico_E662608797224B29-if00"
	DefaultBaudRate = config.DefaultBaudRate
	DefaultTimeout  = 500 * time.Millisecond

	// WriteSettleDelay is the time the mount firmware needs to process a
	// command before its reply can be read.
	WriteSettleDelay = 100 * time.Millisecond

	// Terminator ends every Meade command and reply.
	Terminator = '#'
)

var ErrNotConnected = errors.New("mount not connected")

// ChannelConfig identifies the serial device of the mount.
type ChannelConfig struct {
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// ConfigFromDevices resolves the telescope device from the saved device
// configuration, falling back to the built-in device and baud rate.
func ConfigFromDevices(dc config.DeviceConfig) ChannelConfig {
	cfg := ChannelConfig{
		Device:   dc.TelescopeDevice,
		BaudRate: dc.TelescopeBaudrate,
		Timeout:  DefaultTimeout,
	}
	if cfg.Device == "" {
		log.Infof("Using default telescope device: %s", DefaultDevice)
		cfg.Device = DefaultDevice
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	return cfg
}

type Option func(*Channel)

// WithOpener replaces the function used to open the serial device.
func WithOpener(open OpenFunc) Option {
	return func(c *Channel) { c.open = open }
}

// WithSleep replaces the function used for settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Channel) { c.sleep = sleep }
}

// WithClock replaces the clock used to enforce read timeouts.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Channel) { c.logger = logger }
}

// noCopy makes go vet flag copies of a Channel.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Channel is one serial session with the mount. Commands and replies are
// paired by order only, so a Channel must not be shared: every exchange
// holds the session lock from write to read.
type Channel struct {
	noCopy noCopy

	mu     sync.Mutex
	cfg    ChannelConfig
	open   OpenFunc
	sleep  func(time.Duration)
	now    func() time.Time
	logger log.FieldLogger

	port      Port
	connected bool
}

func NewChannel(cfg ChannelConfig, opts ...Option) *Channel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}

	c := &Channel{
		cfg:    cfg,
		open:   OpenSerial,
		sleep:  time.Sleep,
		now:    time.Now,
		logger: log.WithField("device", "mount"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session opens a channel, runs fn on it and always closes it again.
// fn is not called if the port cannot be opened.
func Session(cfg ChannelConfig, fn func(*Channel), opts ...Option) error {
	ch := NewChannel(cfg, opts...)
	ch.Connect()
	defer ch.Disconnect()

	if !ch.Connected() {
		return ErrNotConnected
	}
	fn(ch)
	return nil
}

// Connect opens the serial port. Failures are logged and leave the channel
// disconnected. Calling Connect on an open channel does nothing.
func (c *Channel) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected || c.port != nil {
		c.logger.Infof("Already connected to mount at %s", c.cfg.Device)
		return
	}

	port, err := c.open(c.cfg.Device, c.cfg.BaudRate)
	if err != nil {
		c.connected = false
		c.logger.Errorf("Error connecting to %s: %v", c.cfg.Device, err)
		return
	}

	c.port = port
	c.connected = true
	runtime.SetFinalizer(c, (*Channel).finalize)
	c.logger.Infof("Connected to mount at %s (%d baud)", c.cfg.Device, c.cfg.BaudRate)
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the port if it is open.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closePort()
}

// Close is Disconnect for use with defer and io.Closer.
func (c *Channel) Close() error {
	c.Disconnect()
	return nil
}

func (c *Channel) closePort() {
	if c.port == nil {
		return
	}
	if err := c.port.Close(); err != nil {
		c.logger.Warnf("Error closing %s: %v", c.cfg.Device, err)
	}
	c.port = nil
	c.connected = false
	runtime.SetFinalizer(c, nil)
}

// finalize releases a port whose owner never called Disconnect.
func (c *Channel) finalize() {
	if c.port != nil {
		c.logger.Warnf("Channel to %s was not closed, closing it now", c.cfg.Device)
		c.closePort()
	}
}

// Write sends a command as is; the caller adds the terminator. It returns
// false if the channel is not connected or the write fails.
func (c *Channel) Write(cmd string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(cmd)
}

// Read reads one reply. With numBytes > 0 it reads exactly that many bytes;
// otherwise it reads up to and including the terminator. Either way it gives
// up when the timeout expires and returns what arrived so far.
func (c *Channel) Read(numBytes int) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(numBytes)
}

// ReadResponse is Read collapsed to text. ok is false when nothing usable
// could be read.
func (c *Channel) ReadResponse(numBytes int) (string, bool) {
	r := c.Read(numBytes)
	return r.Text, r.Valid()
}

// Exchange writes cmd and reads its reply without letting any other
// command in between.
func (c *Channel) Exchange(cmd string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.write(cmd) {
		return "", false
	}
	r := c.read(0)
	return r.Text, r.Valid()
}

func (c *Channel) write(cmd string) bool {
	if !c.connected {
		c.logger.Warn("Not connected to serial port")
		return false
	}

	c.logger.Debugf("Sending command: %s", cmd)
	if _, err := c.port.Write([]byte(cmd)); err != nil {
		c.logger.Errorf("Error sending data: %v", err)
		return false
	}
	if err := c.port.Drain(); err != nil {
		c.logger.Errorf("Error flushing data: %v", err)
		return false
	}

	c.sleep(WriteSettleDelay)
	return true
}

func (c *Channel) read(numBytes int) Reply {
	if !c.connected {
		c.logger.Warn("Not connected to serial port")
		return Reply{Outcome: OutcomeNotConnected, Err: ErrNotConnected}
	}

	data, outcome, err := c.collect(numBytes)
	if err != nil {
		c.logger.Errorf("Error reading data: %v", err)
		return Reply{Outcome: outcome, Err: err}
	}

	if !utf8.Valid(data) {
		err := fmt.Errorf("reply is not valid text: %q", data)
		c.logger.Errorf("Error reading data: %v", err)
		return Reply{Outcome: OutcomeMalformed, Err: err}
	}

	text := strings.TrimSpace(string(data))
	text = strings.TrimSuffix(text, string(Terminator))

	if outcome == OutcomeTimeout {
		c.logger.Debugf("No terminator within %v, using partial reply %q", c.cfg.Timeout, text)
	} else {
		c.logger.Debugf("Response: %s", text)
	}
	return Reply{Text: text, Outcome: outcome}
}

// collect gathers raw bytes until the terminator (numBytes <= 0), until
// numBytes bytes arrived, or until the timeout expires.
func (c *Channel) collect(numBytes int) ([]byte, Outcome, error) {
	deadline := c.now().Add(c.cfg.Timeout)

	size := 1
	if numBytes > 0 {
		size = numBytes
	}
	buf := make([]byte, size)
	data := make([]byte, 0, max(size, 16))

	for {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return data, OutcomeTimeout, nil
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return data, OutcomeTransport, err
		}

		want := 1
		if numBytes > 0 {
			want = numBytes - len(data)
		}

		n, err := c.port.Read(buf[:want])
		if err != nil {
			return data, OutcomeTransport, err
		}
		if n == 0 {
			continue
		}
		data = append(data, buf[:n]...)

		if numBytes > 0 {
			if len(data) >= numBytes {
				return data, OutcomeOK, nil
			}
			continue
		}
		if buf[0] == Terminator {
			return data, OutcomeOK, nil
		}
	}
}
