// Package mounttest provides an in-memory mount for tests of code that
// talks to the mount through a mount.Channel.
package mounttest

import (
	"errors"
	"sync"
	"time"

	"oatcontrol/pkg/mount"
)

// Clock is a manual clock. Sleeping and timed out reads advance it, so
// tests never wait for settle delays or read timeouts.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2024, 6, 15, 21, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Port answers every written command found in Replies with its reply.
// Unknown commands get no reply, like a mount that ignores them.
type Port struct {
	mu       sync.Mutex
	clock    *Clock
	replies  map[string]string
	rx       []byte
	timeout  time.Duration
	written  []string
	writeErr error
	closed   bool
}

func NewPort(clock *Clock, replies map[string]string) *Port {
	return &Port{clock: clock, replies: replies}
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written = append(p.written, string(b))
	if reply, ok := p.replies[string(b)]; ok {
		p.rx = append(p.rx, reply...)
	}
	return len(b), nil
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if len(p.rx) == 0 {
		p.clock.Sleep(p.timeout)
		return 0, nil
	}
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *Port) Drain() error { return nil }

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.rx = nil
	return nil
}

// Written returns every command written so far, across sessions.
func (p *Port) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Mount bundles a clock, a port and an opener that hands out the port.
type Mount struct {
	Clock *Clock
	Port  *Port

	// Err, when set, makes every open fail.
	Err error

	// WriteErr, when set, makes every write fail.
	WriteErr error

	mu     sync.Mutex
	opens  int
	device string
	baud   int
}

func New(replies map[string]string) *Mount {
	clock := NewClock()
	return &Mount{
		Clock: clock,
		Port:  NewPort(clock, replies),
	}
}

func (m *Mount) Open(device string, baud int) (mount.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.opens++
	m.device = device
	m.baud = baud
	if m.Err != nil {
		return nil, m.Err
	}

	m.Port.mu.Lock()
	m.Port.closed = false
	m.Port.writeErr = m.WriteErr
	m.Port.mu.Unlock()
	return m.Port, nil
}

// Opens returns how many times the device was opened.
func (m *Mount) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// LastOpen returns the device and baud rate of the last open.
func (m *Mount) LastOpen() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device, m.baud
}

// Options wires the fake into a mount.Channel.
func (m *Mount) Options() []mount.Option {
	return []mount.Option{
		mount.WithOpener(m.Open),
		mount.WithSleep(m.Clock.Sleep),
		mount.WithClock(m.Clock.Now),
	}
}
