// Package phd2 is a JSON-RPC 2.0 client for the PHD2 guiding daemon.
package phd2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 4400

	RequestTimeout = 5 * time.Second

	// JSON-RPC version
	Version = "2.0"

	methodGetAppState = "get_app_state"
	methodGuide       = "guide"
	methodStopCapture = "stop_capture"

	maxReplySize = 1 << 20
)

// Application states reported by get_app_state.
const (
	StateStopped  = "Stopped"
	StateGuiding  = "Guiding"
	StateLostLock = "LostLock"
)

var (
	ErrRPC       = errors.New("PHD2 communication error")
	ErrMalformed = errors.New("PHD2 reply is not valid JSON")
)

// Request is a JSON-RPC 2.0 request as PHD2 expects it.
type Request struct {
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Params  any    `json:"params,omitempty"`
}

// Settle describes when PHD2 considers guiding settled after it starts.
type Settle struct {
	Pixels  float64 `json:"pixels"`
	Time    int     `json:"time"`    // seconds
	Timeout int     `json:"timeout"` // seconds
}

var DefaultSettle = Settle{Pixels: 1.5, Time: 10, Timeout: 100}

type guideParams struct {
	Settle Settle `json:"settle"`
}

// Status is the combined view of the guider given to API clients.
type Status struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	Guiding   bool   `json:"guiding"`
}

var disconnectedStatus = Status{Connected: false, State: StateStopped, Guiding: false}

// BaseURL returns the endpoint of a PHD2 instance.
func BaseURL(host string, port int) string {
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client talks to one PHD2 instance. Every request takes a new id, also when
// it fails, so ids are never reused.
type Client struct {
	baseURL string
	http    *http.Client
	lastID  atomic.Int64
	logger  log.FieldLogger
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: RequestTimeout},
		logger:  log.WithField("device", "phd2"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) nextID() int64 {
	return c.lastID.Add(1)
}

// call posts one request and returns the parsed reply.
func (c *Client) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	req := Request{
		Method:  method,
		ID:      c.nextID(),
		JSONRPC: Version,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrRPC, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debugf("Sending %s (id %d)", method, req.ID)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("%w: %s returned %s", ErrRPC, method, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrRPC, err)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%w: %q", ErrMalformed, data)
	}

	c.logger.Debugf("Response to %s: %s", method, data)
	return gjson.ParseBytes(data), nil
}

// AppState returns the PHD2 application state, "Stopped" if the reply has
// no usable result.
func (c *Client) AppState(ctx context.Context) (string, error) {
	reply, err := c.call(ctx, methodGetAppState, nil)
	if err != nil {
		return StateStopped, err
	}

	if result := reply.Get("result"); result.Type == gjson.String && result.Str != "" {
		return result.Str, nil
	}
	return StateStopped, nil
}

// Connected reports whether PHD2 answers at all.
func (c *Client) Connected(ctx context.Context) bool {
	if _, err := c.AppState(ctx); err != nil {
		c.logger.Debugf("PHD2 not connected: %v", err)
		return false
	}
	return true
}

// StartGuiding starts guiding with the default settle parameters.
func (c *Client) StartGuiding(ctx context.Context) bool {
	return c.action(ctx, methodGuide, guideParams{Settle: DefaultSettle})
}

func (c *Client) StopGuiding(ctx context.Context) bool {
	return c.action(ctx, methodStopCapture, nil)
}

// action succeeds when the reply carries no error member.
func (c *Client) action(ctx context.Context, method string, params any) bool {
	reply, err := c.call(ctx, method, params)
	if err != nil {
		c.logger.Errorf("Failed to send %s: %v", method, err)
		return false
	}

	if rpcErr := reply.Get("error"); rpcErr.Exists() {
		c.logger.Warnf("PHD2 rejected %s: %s", method, rpcErr.Get("message").String())
		return false
	}
	return true
}

// Status never fails: an unreachable or confused daemon reports as stopped
// and disconnected.
func (c *Client) Status(ctx context.Context) Status {
	state, err := c.AppState(ctx)
	if err != nil {
		c.logger.Debugf("PHD2 status unavailable: %v", err)
		return disconnectedStatus
	}

	return Status{
		Connected: true,
		State:     state,
		Guiding:   state == StateGuiding || state == StateLostLock,
	}
}
