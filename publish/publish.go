// Package publish - MQTT delivery of classification results.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/logging"
)

// ErrNotConnected is returned when publishing before Connect or after Close.
var ErrNotConnected = errors.New("not connected to MQTT broker")

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// Client is the subset of mqtt.Client used by the publisher.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Config addresses the broker.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// Message is the JSON payload published for every classification.
type Message struct {
	ID                  string                  `json:"id"`
	Model               string                  `json:"model"`
	Label               string                  `json:"label"`
	Confidence          float32                 `json:"confidence"`
	Severity            classifier.Severity     `json:"severity"`
	InferenceTimeMillis int64                   `json:"inference_time_ms"`
	Predictions         []classifier.Prediction `json:"predictions,omitempty"`
	Timestamp           time.Time               `json:"timestamp"`
}

// Publisher sends classification results to <topic>/<model id>.
type Publisher struct {
	mu     sync.Mutex
	client Client
	topic  string
	qos    byte
	log    *slog.Logger
	now    func() time.Time
}

// New builds a publisher with a paho client for cfg. Call Connect before publishing.
func New(cfg Config) *Publisher {
	p := &Publisher{topic: cfg.Topic, qos: cfg.QoS, log: logging.Module("mqtt"), now: time.Now}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.log.Info("connected to MQTT broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.log.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
	})
	p.client = mqtt.NewClient(opts)
	return p
}

// NewWithClient builds a publisher around an existing client.
func NewWithClient(c Client, topic string, qos byte, log *slog.Logger) *Publisher {
	if log == nil {
		log = logging.Module("mqtt")
	}
	return &Publisher{client: c, topic: topic, qos: qos, log: log, now: time.Now}
}

// Connect dials the broker.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := p.client.Connect()
	if err := wait(ctx, token, connectTimeout); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

// PublishResult publishes a single-label classification.
func (p *Publisher) PublishResult(ctx context.Context, res *classifier.Result) error {
	return p.publish(ctx, Message{
		Model:               res.ModelID,
		Label:               res.Label,
		Confidence:          res.Confidence,
		Severity:            classifier.SeverityOf(res.Confidence),
		InferenceTimeMillis: res.InferenceTimeMillis,
	})
}

// PublishRanked publishes a top-N classification; the first prediction is the headline.
func (p *Publisher) PublishRanked(ctx context.Context, ranked *classifier.Ranked) error {
	msg := Message{
		Model:               ranked.ModelID,
		InferenceTimeMillis: ranked.InferenceTimeMillis,
		Predictions:         ranked.Predictions,
	}
	if len(ranked.Predictions) > 0 {
		msg.Label = ranked.Predictions[0].Label
		msg.Confidence = ranked.Predictions[0].Confidence
	}
	msg.Severity = classifier.SeverityOf(msg.Confidence)
	return p.publish(ctx, msg)
}

// Topic returns the topic results for modelID are published on.
func (p *Publisher) Topic(modelID string) string {
	return p.topic + "/" + modelID
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = p.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	topic := p.Topic(msg.Model)
	token := p.client.Publish(topic, p.qos, false, payload)
	if err := wait(ctx, token, publishTimeout); err != nil {
		p.log.Warn("publish failed", "topic", topic, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debug("published", "topic", topic, "id", msg.ID, "bytes", len(payload))
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// wait blocks until token completes, ctx ends or timeout passes.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timeout")
	}
}
