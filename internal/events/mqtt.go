package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/config"
	"github.com/ukydev/fleet-registry/internal/live"
	"github.com/ukydev/fleet-registry/internal/models"
)

const (
	mqttQoS         = 1
	mqttWaitTimeout = 10 * time.Second
)

// ConnectMQTT dials the broker described by cfg.
func ConnectMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.WithField("broker", cfg.Broker).Info("MQTT connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

func wait(t mqtt.Token) error {
	if !t.WaitTimeout(mqttWaitTimeout) {
		return fmt.Errorf("timed out after %s", mqttWaitTimeout)
	}
	return t.Error()
}

// MQTTPublisher mirrors vehicle events to "<prefix>/vehiculo/creado" and
// "<prefix>/vehiculo/actualizado".
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	now    func() time.Time
}

// NewMQTTPublisher publishes through an already connected client.
func NewMQTTPublisher(client mqtt.Client, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, now: time.Now}
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, event string, payload models.VehicleEvent) error {
	msg, err := encodeEnvelope(event, payload, p.now())
	if err != nil {
		return err
	}
	t := p.client.Publish(Topic(p.prefix, event), mqttQoS, false, msg)
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// MQTTSource subscribes to the vehicle topics of a broker.
type MQTTSource struct {
	client mqtt.Client
	prefix string
	now    func() time.Time
}

// NewMQTTSource subscribes through an already connected client.
func NewMQTTSource(client mqtt.Client, prefix string) *MQTTSource {
	return &MQTTSource{client: client, prefix: prefix, now: time.Now}
}

// Subscribe implements live.Subscriber.
func (s *MQTTSource) Subscribe(ctx context.Context, h live.Handler) (func(), error) {
	topic := Topic(s.prefix, "vehiculo") + "/#"
	err := wait(s.client.Subscribe(topic, mqttQoS, func(_ mqtt.Client, m mqtt.Message) {
		_, ev, err := DecodeEvent(m.Payload(), s.now())
		if err != nil {
			log.WithError(err).WithField("topic", m.Topic()).Warn("Dropping malformed MQTT message")
			return
		}
		h(ev)
	}))
	if err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}

	stop := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(stop)
			if err := wait(s.client.Unsubscribe(topic)); err != nil {
				log.WithError(err).Warn("MQTT unsubscribe failed")
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-stop:
		}
	}()
	return unsubscribe, nil
}

var (
	_ Publisher       = (*MQTTPublisher)(nil)
	_ live.Subscriber = (*MQTTSource)(nil)
)
