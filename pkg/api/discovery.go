package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DiscoveryPort    = 32228
	discoveryMessage = "oatdiscovery1"
)

// DiscoveryResponder answers LAN discovery broadcasts with the port of the
// REST API.
type DiscoveryResponder struct {
	addr     string
	port     int
	response []byte
	logger   log.FieldLogger
}

func NewDiscoveryResponder(addr string, port, apiPort int, logger log.FieldLogger) *DiscoveryResponder {
	if port <= 0 {
		port = DiscoveryPort
	}

	return &DiscoveryResponder{
		addr:     addr,
		port:     port,
		response: []byte(fmt.Sprintf(`{"ApiPort": %d}`, apiPort)),
		logger:   logger,
	}
}

func (d *DiscoveryResponder) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", net.JoinHostPort(d.addr, strconv.Itoa(d.port)))
	if err != nil {
		return fmt.Errorf("cannot bind discovery socket: %w", err)
	}
	defer conn.Close()

	d.logger.Debugf("Discovery responder started on %s", conn.LocalAddr())
	return d.Serve(ctx, conn)
}

// Serve answers discovery requests on conn until ctx is done.
func (d *DiscoveryResponder) Serve(ctx context.Context, conn net.PacketConn) error {
	buf := make([]byte, 1024)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Wake up regularly to notice cancellation
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.logger.Debugf("Error reading from socket: %v", err)
			continue
		}

		data := string(buf[:n])
		d.logger.Debugf("Received %s from %s", data, addr)

		if strings.Contains(data, discoveryMessage) {
			if _, err := conn.WriteTo(d.response, addr); err != nil {
				d.logger.Errorf("Error writing to socket: %v", err)
			}
		}
	}
}
