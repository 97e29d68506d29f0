package mqttbridge

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client is the minimal MQTT surface the bridge needs, so it can be tested
// without a live broker.
type Client interface {
	Subscribe(topic string, fn func(topic string, payload []byte)) error
	Publish(topic string, payload []byte) error
}

// PahoClient implements Client on top of paho.
type PahoClient struct {
	cli    mqtt.Client
	logger *zap.Logger
}

var _ Client = (*PahoClient)(nil)

// Dial connects to brokerURL (mqtt://, tcp://, ssl://, tls://, ws:// or wss://,
// optionally with user:password) and blocks until the first connect completes.
func Dial(brokerURL, clientID string, logger *zap.Logger) (*PahoClient, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls":
		server = "ssl://" + server
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID + "-" + time.Now().Format("150405.000"))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) { logger.Info("mqtt connected", zap.String("broker", server)) }
	opts.OnConnectionLost = func(_ mqtt.Client, err error) { logger.Error("mqtt connection lost", zap.Error(err)) }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", t.Error())
	}
	return &PahoClient{cli: cli, logger: logger}, nil
}

func (c *PahoClient) Subscribe(topic string, fn func(topic string, payload []byte)) error {
	t := c.cli.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Topic(), msg.Payload())
	})
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	c.logger.Info("mqtt subscribed", zap.String("topic", topic))
	return nil
}

func (c *PahoClient) Publish(topic string, payload []byte) error {
	t := c.cli.Publish(topic, 1, false, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight work.
func (c *PahoClient) Close() {
	c.cli.Disconnect(250)
}
