// Package mqtt bridges fixture commands and engine telemetry to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bbernstein/lacylights-dmx/internal/logger"
	"github.com/bbernstein/lacylights-dmx/internal/services/command"
	"github.com/bbernstein/lacylights-dmx/internal/services/pubsub"
)

// Config configures the bridge.
type Config struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	User        string
	Password    string
	// RetryInterval paces connection retries.
	RetryInterval time.Duration
}

// Dispatcher applies a command to a named fixture. *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(name string, cmd command.Command) error
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge subscribes to fixture command topics and publishes stats, idle
// state and the indicator level.
type Bridge struct {
	cfg        Config
	log        *logger.Log
	dispatcher Dispatcher
	bus        *pubsub.PubSub

	mu       sync.Mutex
	client   paho.Client
	pub      publisher
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a disconnected bridge.
func New(cfg Config, dispatcher Dispatcher, bus *pubsub.PubSub, log *logger.Log) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "lacylights"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Bridge{
		cfg:        cfg,
		log:        log.Module("mqtt"),
		dispatcher: dispatcher,
		bus:        bus,
	}
}

// CommandTopic is the wildcard subscription for fixture commands.
func (b *Bridge) CommandTopic() string { return b.cfg.TopicPrefix + "/fixtures/+/set" }

// StatsTopic carries dmx.Stats as JSON.
func (b *Bridge) StatsTopic() string { return b.cfg.TopicPrefix + "/stats" }

// StatusTopic carries idle events as JSON, retained.
func (b *Bridge) StatusTopic() string { return b.cfg.TopicPrefix + "/status" }

// IndicatorTopic carries the status lamp level, retained.
func (b *Bridge) IndicatorTopic() string { return b.cfg.TopicPrefix + "/indicator" }

// Start connects to the broker and starts forwarding bus events. It returns
// once connected or when ctx is done.
func (b *Bridge) Start(ctx context.Context) error {
	if b.log.GetLevel() == "debug" {
		paho.ERROR = log.New(os.Stdout, "[ERROR] ", 0)
		paho.CRITICAL = log.New(os.Stdout, "[CRIT] ", 0)
		paho.WARN = log.New(os.Stdout, "[WARN]  ", 0)
	}

	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetUsername(b.cfg.User).
		SetPassword(b.cfg.Password).
		SetClientID(b.cfg.ClientID).
		SetOnConnectHandler(b.connectHandler).
		SetConnectionLostHandler(b.connectLostHandler).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(b.cfg.RetryInterval).
		SetMaxReconnectInterval(b.cfg.RetryInterval).
		SetKeepAlive(30*time.Second).
		SetWill(b.StatusTopic(), `{"online":false}`, 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, token.Error())
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, ctx.Err())
	}

	b.mu.Lock()
	b.client = client
	b.pub = client
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.forward(b.stopChan, b.done)
	b.mu.Unlock()

	b.log.WithField("broker", b.cfg.Broker).Info("📡 MQTT bridge connected")
	return nil
}

// Stop stops forwarding and disconnects.
func (b *Bridge) Stop() {
	b.mu.Lock()
	client, stop, done := b.client, b.stopChan, b.done
	b.client, b.pub, b.stopChan = nil, nil, nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if client != nil && client.IsConnected() {
		client.Disconnect(500)
	}
}

func (b *Bridge) connectHandler(c paho.Client) {
	b.log.Info("client connected to server")
	token := c.Subscribe(b.CommandTopic(), 1, b.messageHandler)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			b.log.WithError(token.Error()).Errorf("subscribe %s", b.CommandTopic())
			return
		}
		b.log.Debugf("topic %s subscribed", b.CommandTopic())
	}()
}

func (b *Bridge) connectLostHandler(_ paho.Client, err error) {
	b.log.WithError(err).Error("server connection lost")
}

func (b *Bridge) messageHandler(_ paho.Client, msg paho.Message) {
	if err := b.handle(msg.Topic(), msg.Payload()); err != nil {
		b.log.WithError(err).WithField("topic", msg.Topic()).Warn("command dropped")
	}
}

// handle decodes and dispatches one command message.
func (b *Bridge) handle(topic string, payload []byte) error {
	name, ok := b.fixtureFromTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	cmd, err := command.Decode(payload)
	if err != nil {
		return err
	}
	return b.dispatcher.Dispatch(name, cmd)
}

func (b *Bridge) fixtureFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.cfg.TopicPrefix+"/fixtures/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (b *Bridge) forward(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	if b.bus == nil {
		<-stop
		return
	}

	stats := b.bus.Subscribe(pubsub.TopicStats, "", 4)
	idle := b.bus.Subscribe(pubsub.TopicIdleState, "", 4)
	defer b.bus.Unsubscribe(stats)
	defer b.bus.Unsubscribe(idle)

	for {
		select {
		case <-stop:
			return
		case msg := <-stats.Channel:
			b.publishJSON(b.StatsTopic(), false, msg)
		case msg := <-idle.Channel:
			b.publishJSON(b.StatusTopic(), true, msg)
		}
	}
}

func (b *Bridge) publishJSON(topic string, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.WithError(err).Errorf("encode %s", topic)
		return
	}
	b.publish(topic, retained, payload)
}

var errNotConnected = errors.New("not connected")

func (b *Bridge) publish(topic string, retained bool, payload []byte) {
	b.mu.Lock()
	pub := b.pub
	b.mu.Unlock()
	if pub == nil {
		b.log.WithError(errNotConnected).Debugf("publish %s skipped", topic)
		return
	}

	token := pub.Publish(topic, 0, retained, payload)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			b.log.WithError(token.Error()).Errorf("publish %s", topic)
		}
	}()
}

// SetLevel publishes the status lamp level. It lets the bridge serve as an
// indicator.Output.
func (b *Bridge) SetLevel(level int) {
	b.publish(b.IndicatorTopic(), true, []byte(strconv.Itoa(level)))
}
