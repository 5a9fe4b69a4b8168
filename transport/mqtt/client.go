package mqtt

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/transport"
)

// Config holds the broker connection settings.
type Config struct {
	Broker         string        `json:"broker" yaml:"broker"`
	ClientID       string        `json:"client_id" yaml:"client_id"`
	Username       string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string        `json:"password,omitempty" yaml:"password,omitempty"`
	CleanSession   bool          `json:"clean_session" yaml:"clean_session"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	KeepAlive      time.Duration `json:"keep_alive" yaml:"keep_alive"`
	TLS            *tls.Config   `json:"-" yaml:"-"`
}

// Client adapts a paho client to transport.Client. Subscriptions are
// replayed on every reconnect.
type Client struct {
	cfg    Config
	client MQTT.Client
	logger operations.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	pattern string
	qos     transport.QoS
	pump    *transport.Pump
}

type Option func(*Client)

func WithLogger(logger operations.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New prepares a client; call Connect before use.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]*subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = operations.NormalizeLogger(c.logger)

	mo := MQTT.NewClientOptions()
	mo.AddBroker(cfg.Broker)
	mo.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		mo.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		mo.SetPassword(cfg.Password)
	}
	if cfg.TLS != nil {
		mo.SetTLSConfig(cfg.TLS)
	}
	if cfg.ConnectTimeout > 0 {
		mo.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.KeepAlive > 0 {
		mo.SetKeepAlive(cfg.KeepAlive)
	}
	mo.SetCleanSession(cfg.CleanSession)
	mo.SetAutoReconnect(true)
	mo.SetOrderMatters(true)
	mo.SetOnConnectHandler(c.onConnect)
	mo.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		c.logger.Warn("connection lost to MQTT broker %s: %v", cfg.Broker, err)
	})

	c.client = MQTT.NewClient(mo)
	return c
}

// Connect blocks until the broker accepts the connection or ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	return c.wait(ctx, c.client.Connect(), "connect", map[string]any{"broker": c.cfg.Broker})
}

func (c *Client) Publish(ctx context.Context, msg transport.Message) error {
	token := c.client.Publish(msg.Topic, byte(msg.QoS), msg.Retained, msg.Payload)
	return c.wait(ctx, token, "publish", map[string]any{"topic": msg.Topic})
}

// Subscribe delivers matching messages to out through an ordered pump, so
// the paho router goroutine never blocks on a slow consumer.
func (c *Client) Subscribe(ctx context.Context, pattern string, out chan<- transport.Message) error {
	sub := &subscription{
		pattern: pattern,
		qos:     transport.AtLeastOnce,
		pump:    transport.NewPump(ctx, out),
	}

	c.mu.Lock()
	c.subs[pattern] = sub
	c.mu.Unlock()

	if err := c.subscribe(ctx, sub); err != nil {
		c.mu.Lock()
		delete(c.subs, pattern)
		c.mu.Unlock()
		return err
	}

	go func() {
		<-sub.pump.Done()
		c.mu.Lock()
		if c.subs[pattern] == sub {
			delete(c.subs, pattern)
		}
		c.mu.Unlock()
		if c.client.IsConnected() {
			c.client.Unsubscribe(pattern)
		}
	}()
	return nil
}

func (c *Client) subscribe(ctx context.Context, sub *subscription) error {
	token := c.client.Subscribe(sub.pattern, byte(sub.qos), func(_ MQTT.Client, m MQTT.Message) {
		sub.pump.Push(transport.Message{
			Topic:    m.Topic(),
			Payload:  m.Payload(),
			QoS:      transport.QoS(m.Qos()),
			Retained: m.Retained(),
		})
	})
	return c.wait(ctx, token, "subscribe", map[string]any{"pattern": sub.pattern})
}

func (c *Client) onConnect(_ MQTT.Client) {
	c.logger.Info("connected to MQTT broker %s", c.cfg.Broker)

	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		sub := s
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := c.subscribe(ctx, sub); err != nil {
				c.logger.Error("resubscribe %s failed: %v", sub.pattern, err)
			}
		}()
	}
}

// Close disconnects, waiting up to quiesce for in-flight work.
func (c *Client) Close(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce / time.Millisecond))
}

func (c *Client) wait(ctx context.Context, token MQTT.Token, op string, meta map[string]any) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return operations.NewError(operations.ErrPublishFailed, "mqtt "+op+" failed", err, meta)
	}
	return nil
}
