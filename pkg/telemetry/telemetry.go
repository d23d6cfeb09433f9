// Package telemetry publishes the state of the INDI server and the guider
// to an MQTT broker at a fixed interval.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oatcontrol/pkg/config"
	"oatcontrol/pkg/indi"
	"oatcontrol/pkg/phd2"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 10 * time.Second
	publishTimeout  = 5 * time.Second
)

// NewMQTTClient connects to the broker in cfg.
func NewMQTTClient(cfg config.MQTTConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(clientID)
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}

type INDIStatus struct {
	ServerRunning  bool  `json:"server_running"`
	MountConnected *bool `json:"mount_connected"`
}

// Publisher polls the INDI server and the guider and publishes what it
// finds. Clients are built fresh for every poll, like API requests do.
// The mount's serial port is never touched.
type Publisher struct {
	client     mqtt.Client
	topicRoot  string
	interval   time.Duration
	newINDI    func() *indi.Client
	indiDriver string
	newGuider  func() *phd2.Client
	logger     log.FieldLogger
}

func NewPublisher(client mqtt.Client, cfg config.MQTTConfig, newINDI func() *indi.Client, indiDriver string, newGuider func() *phd2.Client, logger log.FieldLogger) *Publisher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Publisher{
		client:     client,
		topicRoot:  cfg.TopicRoot,
		interval:   interval,
		newINDI:    newINDI,
		indiDriver: indiDriver,
		newGuider:  newGuider,
		logger:     logger,
	}
}

// Run publishes immediately and then every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Infof("Publishing telemetry to %s every %v", p.topicRoot, p.interval)
	for {
		if err := p.PublishOnce(ctx); err != nil {
			p.logger.Warnf("Failed to publish telemetry: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PublishOnce collects one round of statuses and publishes them.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	if err := p.publish(p.topicRoot+"/indi", p.indiStatus(ctx)); err != nil {
		return err
	}
	return p.publish(p.topicRoot+"/guider", p.newGuider().Status(ctx))
}

func (p *Publisher) indiStatus(ctx context.Context) INDIStatus {
	client := p.newINDI()
	if !client.IsServerRunning(ctx) {
		notConnected := false
		return INDIStatus{ServerRunning: false, MountConnected: &notConnected}
	}

	status := INDIStatus{ServerRunning: true}
	if connected, known := client.MountStatus(ctx, p.indiDriver); known {
		status.MountConnected = &connected
	}
	return status
}

func (p *Publisher) publish(topic string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	p.logger.Debugf("Publishing %s: %s", topic, payload)
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %v", topic, err)
	}
	return nil
}
