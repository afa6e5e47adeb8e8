// Package mqtt carries conversations over an MQTT broker. Events arrive as
// JSON on a subscription topic and messages leave on per-recipient topics.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// Transport is the part of a broker client the messenger needs.
type Transport interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Close()
}

// Processor handles one inbound event.
type Processor interface {
	Process(ctx context.Context, ev *core.Event) (*core.Context, error)
}

// Options configures a Messenger.
type Options struct {
	// InTopic receives inbound events.
	InTopic string
	// OutTopic prefixes outbound topics; messages for user U go to
	// OutTopic + "/" + U.
	OutTopic string
	QoS      byte
	// ChannelID stamps events that carry none.
	ChannelID string
	Logger    logging.Logger
}

// Messenger implements core.Messenger on top of a Transport.
type Messenger struct {
	transport Transport
	opts      Options
	wg        sync.WaitGroup
}

var _ core.Messenger = (*Messenger)(nil)

// New creates a Messenger using transport.
func New(transport Transport, optFns ...func(o *Options)) *Messenger {
	opts := Options{
		InTopic:  "botmesh/in",
		OutTopic: "botmesh/out",
		QoS:      1,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.OutTopic = strings.TrimRight(opts.OutTopic, "/")
	return &Messenger{transport: transport, opts: opts}
}

// Type implements core.Messenger.
func (m *Messenger) Type() string { return "mqtt" }

// ValidateSignature implements core.Messenger. Broker authentication
// already identifies the publisher.
func (m *Messenger) ValidateSignature(http.Header, []byte) bool { return true }

// ExtractEvents implements core.Messenger. The payload is either a single
// event or an object with an events array.
func (m *Messenger) ExtractEvents(body []byte) ([]*core.Event, error) {
	var probe struct {
		Events []*core.Event `json:"events"`
		Type   string        `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("mqtt: decode payload: %w", err)
	}

	events := probe.Events
	if probe.Type != "" {
		var ev core.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("mqtt: decode event: %w", err)
		}
		events = []*core.Event{&ev}
	}
	for _, ev := range events {
		if ev != nil && ev.ChannelID == "" {
			ev.ChannelID = m.opts.ChannelID
		}
	}
	return events, nil
}

// CheckSupportedEventType implements core.Messenger.
func (m *Messenger) CheckSupportedEventType(ev *core.Event, flow string) bool {
	switch flow {
	case core.FlowStartConversation, core.FlowReply, core.FlowBtw:
		return ev.Type == core.EventTypeMessage || ev.Type == core.EventTypePostback
	}
	return false
}

// Outbound is the payload published for replies and pushes.
type Outbound struct {
	ReplyToken string         `json:"replyToken,omitempty"`
	To         string         `json:"to"`
	Messages   []core.Message `json:"messages"`
	Language   string         `json:"language,omitempty"`
}

// Reply implements core.Messenger. Replies never expire over MQTT.
func (m *Messenger) Reply(ctx context.Context, ev *core.Event, msgs []core.Message) error {
	to := ev.SenderID()
	return m.publish(ctx, m.TopicFor(to), Outbound{ReplyToken: ev.ReplyToken, To: to, Messages: msgs})
}

// Send implements core.Messenger.
func (m *Messenger) Send(ctx context.Context, _ *core.Event, to string, msgs []core.Message, language string) error {
	return m.publish(ctx, m.TopicFor(to), Outbound{To: to, Messages: msgs, Language: language})
}

// PassThrough implements core.Messenger. The target is a topic.
func (m *Messenger) PassThrough(ctx context.Context, topic string, ev *core.Event) error {
	return m.publish(ctx, topic, map[string]any{"events": []*core.Event{ev}})
}

// TopicFor returns the outbound topic of a recipient.
func (m *Messenger) TopicFor(to string) string { return m.opts.OutTopic + "/" + to }

func (m *Messenger) publish(ctx context.Context, topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: encode payload: %w", err)
	}
	if err := m.transport.Publish(ctx, topic, m.opts.QoS, b); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Listen subscribes to the inbound topic and hands every event to p. Each
// payload is processed on its own goroutine; Close waits for them.
func (m *Messenger) Listen(ctx context.Context, p Processor) error {
	return m.transport.Subscribe(m.opts.InTopic, m.opts.QoS, func(topic string, payload []byte) {
		events, err := m.ExtractEvents(payload)
		if err != nil {
			m.opts.Logger.Warn("Dropping payload", "topic", topic, "error", err)
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for _, ev := range events {
				if ev == nil {
					continue
				}
				if _, err := p.Process(ctx, ev); err != nil {
					m.opts.Logger.Error("Processing event failed", "topic", topic, "type", ev.Type, "error", err)
				}
			}
		}()
	})
}

// Close waits for in-flight events and disconnects the transport.
func (m *Messenger) Close() error {
	m.wg.Wait()
	m.transport.Close()
	return nil
}

// BrokerOptions configures Dial.
type BrokerOptions struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	// KeepAlive defaults to ten seconds.
	KeepAlive time.Duration `yaml:"keep_alive,omitempty"`
	// Quiesce is how long Close lets the client finish outstanding work.
	Quiesce time.Duration `yaml:"quiesce,omitempty"`
}

// Dial connects to a broker with the paho client.
func Dial(bo BrokerOptions, logger logging.Logger) (Transport, error) {
	if bo.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if bo.KeepAlive <= 0 {
		bo.KeepAlive = 10 * time.Second
	}
	if bo.Quiesce <= 0 {
		bo.Quiesce = 250 * time.Millisecond
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(bo.Broker)
	opts.SetClientID(bo.ClientID)
	opts.SetKeepAlive(bo.KeepAlive)
	opts.SetUsername(bo.Username)
	opts.SetPassword(bo.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", bo.Broker, "error", err)
	})

	client := paho.NewClient(opts)
	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", bo.Broker, t.Error())
	}
	logger.Info("Connected to broker", "broker", bo.Broker)
	return &pahoTransport{client: client, quiesce: bo.Quiesce}, nil
}

type pahoTransport struct {
	client  paho.Client
	quiesce time.Duration
}

func (t *pahoTransport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	tok := t.client.Publish(topic, qos, false, payload)
	done := make(chan struct{})
	go func() {
		tok.Wait()
		close(done)
	}()
	select {
	case <-done:
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *pahoTransport) Subscribe(topic string, qos byte, handler func(string, []byte)) error {
	tok := t.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if tok.Wait() && tok.Error() != nil {
		return tok.Error()
	}
	return nil
}

func (t *pahoTransport) Close() {
	t.client.Disconnect(uint(t.quiesce / time.Millisecond))
}
