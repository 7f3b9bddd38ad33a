// Package mqttsink republishes post events on an MQTT topic.
package mqttsink

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/spacecats-dao/spacecats-sync/broadcast"
	"github.com/spacecats-dao/spacecats-sync/post"
)

const DefaultTopic = "spacecats/posts"

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

type Sink struct {
	client mqtt.Client
	topic  string
}

var _ broadcast.Sink = (*Sink)(nil)

// New wraps an already configured client.
func New(client mqtt.Client, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{client: client, topic: topic}
}

// Connect dials the broker described by config.
func Connect(ctx context.Context, config Config, logger zerolog.Logger) (*Sink, error) {
	logger = logger.With().Str("component", "mqtt").Str("broker", config.Broker).Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Msg("connected to mqtt")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %v: %w", config.Broker, err)
	}
	return New(client, config.Topic), nil
}

func (s *Sink) Name() string { return "mqtt" }

func (s *Sink) Send(ctx context.Context, p post.DurablePost) error {
	msg, err := broadcast.PostMessage(p)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, 1, false, msg)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing to %v: %w", s.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %v: %w", s.topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight publishes a moment to finish.
func (s *Sink) Close() {
	s.client.Disconnect(uint(time.Second / time.Millisecond))
}
