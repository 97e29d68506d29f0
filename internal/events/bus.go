// Package events forwards discovery notifications to exactly one sink:
// connected push sockets or an outbound webhook.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/stepherg/sonosgw/internal/discovery"
	"github.com/stepherg/sonosgw/internal/metrics"
	"github.com/stepherg/sonosgw/internal/webhook"
	"github.com/stepherg/sonosgw/internal/ws"
)

// SocketServer is the push-socket transport.
type SocketServer interface {
	OnConnection(fn func(ws.Socket))
	Emit(channel, body string)
}

// Options configures a Bus. An empty Webhook.URL leaves the bus inert.
type Options struct {
	Webhook   webhook.Config
	TypeField string
	DataField string
	// Sockets, when set, receives notifications instead of the webhook.
	Sockets SocketServer
}

type State int

const (
	Inert State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "inert"
}

// strategy is the sink chosen once at construction.
type strategy interface {
	forward(env Envelope)
}

// Bus subscribes to discovery notifications and forwards them.
type Bus struct {
	state    State
	strategy strategy
	sinks    *SinkStore
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// New wires the bus. Without a webhook URL nothing is subscribed.
func New(d discovery.Service, opts Options, logger *zap.Logger) *Bus {
	b := &Bus{sinks: NewSinkStore(), logger: logger}
	if opts.Webhook.URL == "" {
		logger.Info("no webhook configured, event forwarding disabled")
		return b
	}

	fields := fieldNames{typeField: opts.TypeField, dataField: opts.DataField}
	if opts.Sockets != nil {
		ps := &pushSocket{fields: fields, server: opts.Sockets, sinks: b.sinks, logger: logger}
		opts.Sockets.OnConnection(ps.connected)
		b.strategy = ps
	} else {
		b.strategy = &webhookSink{fields: fields, client: webhook.New(opts.Webhook), wg: &b.wg, logger: logger}
	}

	for _, kind := range discovery.Kinds {
		kind := kind
		d.On(kind, func(payload any) {
			b.strategy.forward(Envelope{Kind: kind, Data: payload})
		})
	}
	b.state = Subscribed
	return b
}

func (b *Bus) State() State { return b.state }

// Sinks exposes the connected-socket bookkeeping.
func (b *Bus) Sinks() *SinkStore { return b.sinks }

// Wait blocks until in-flight webhook deliveries finish.
func (b *Bus) Wait() { b.wg.Wait() }

type fieldNames struct {
	typeField string
	dataField string
}

func (f fieldNames) encode(env Envelope) ([]byte, error) {
	env.TypeField = f.typeField
	env.DataField = f.dataField
	return json.Marshal(env)
}

type pushSocket struct {
	fields fieldNames
	server SocketServer
	sinks  *SinkStore
	logger *zap.Logger
}

func (p *pushSocket) connected(s ws.Socket) {
	id, addr := s.ID(), s.RemoteAddr()
	p.sinks.Add(id, Sink{Socket: s, Addr: addr})
	s.OnDisconnect(func() {
		p.logger.Info("client disconnected", zap.String("ip", addr))
		p.sinks.Remove(id)
	})
	p.logger.Info("client connected", zap.String("ip", addr))
}

// forward broadcasts to every connected socket.
func (p *pushSocket) forward(env Envelope) {
	body, err := p.fields.encode(env)
	if err != nil {
		p.logger.Error("encode notification", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	p.server.Emit("event:"+string(env.Kind), string(body))
	metrics.Notifications.WithLabelValues(string(env.Kind), "socket").Inc()
}

type webhookSink struct {
	fields fieldNames
	client *webhook.Client
	wg     *sync.WaitGroup
	logger *zap.Logger
}

// forward posts asynchronously; failures are logged and dropped.
func (w *webhookSink) forward(env Envelope) {
	body, err := w.fields.encode(env)
	if err != nil {
		w.logger.Error("encode notification", zap.String("kind", string(env.Kind)), zap.Error(err))
		return
	}
	kind := string(env.Kind)
	metrics.Notifications.WithLabelValues(kind, "webhook").Inc()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.client.Post(context.Background(), kind, body); err != nil {
			metrics.WebhookFailures.Inc()
			w.logger.Error("could not reach webhook endpoint, verify that the receiving end is up and running",
				zap.String("webhook", w.client.URL()), zap.String("kind", kind), zap.Error(err))
		}
	}()
}
