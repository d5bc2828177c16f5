package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/capture-core/internal/infrastructure/mqtt"
)

// ChannelRequests is the hub channel that receives request events.
const ChannelRequests = "requests"

const defaultQueueSize = 512

// Logger is the logging surface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is satisfied by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteRequestOutcome(o influxdb.Outcome)
	WriteStateChange(service, streamType, state string, at time.Time)
	WriteLinkSecured(service, streamType string, secure bool, at time.Time)
}

// Broadcaster is satisfied by the API WebSocket hub.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Options configures a Fanout. Every sink is optional.
type Options struct {
	Service   string
	Topics    mqtt.Topics
	MQTT      Publisher
	Metrics   MetricsWriter
	Hub       Broadcaster
	Observers []capture.Observer
	Logger    Logger
}

// Message is the envelope broadcast on ChannelRequests.
type Message struct {
	Type string `json:"type"` // state, outcome, link
	Data any    `json:"data"`
}

// Fanout implements capture.Observer.
type Fanout struct {
	service   string
	topics    mqtt.Topics
	mqtt      Publisher
	metrics   MetricsWriter
	hub       Broadcaster
	observers []capture.Observer
	logger    Logger

	queue   chan func()
	dropped atomic.Uint64
}

// NewFanout builds a fan-out over the sinks in opts.
func NewFanout(opts Options) *Fanout {
	f := &Fanout{
		service:   opts.Service,
		topics:    opts.Topics,
		mqtt:      opts.MQTT,
		metrics:   opts.Metrics,
		hub:       opts.Hub,
		observers: opts.Observers,
		logger:    opts.Logger,
		queue:     make(chan func(), defaultQueueSize),
	}
	if f.logger == nil {
		f.logger = noopLogger{}
	}
	return f
}

// OnStateChanged forwards a per-stream-type state transition.
func (f *Fanout) OnStateChanged(ev capture.StateChangeEvent) {
	for _, o := range f.observers {
		o.OnStateChanged(ev)
	}
	f.enqueue(func() {
		f.publish(f.topics.RequestState(ev.Label), ev, false)
		if f.metrics != nil {
			f.metrics.WriteStateChange(f.service, ev.StreamType.String(), ev.State.String(), ev.Time)
		}
		f.broadcast("state", ev)
	})
}

// OnRequestFinished forwards the outcome of a request. Outcomes are
// retained on MQTT so late subscribers see how a request ended.
func (f *Fanout) OnRequestFinished(ev capture.OutcomeEvent) {
	for _, o := range f.observers {
		o.OnRequestFinished(ev)
	}
	f.enqueue(func() {
		f.publish(f.topics.RequestOutcome(ev.Label), ev, true)
		if f.metrics != nil {
			f.metrics.WriteRequestOutcome(influxdb.Outcome{
				Service:     f.service,
				RequestType: ev.RequestType.String(),
				Result:      ev.Result.String(),
				Origin:      ev.Origin.String(),
				Devices:     len(ev.Devices),
				Duration:    ev.Duration,
				Time:        ev.Time,
			})
		}
		f.broadcast("outcome", ev)
	})
}

// OnCapturingLinkSecured forwards a link security change.
func (f *Fanout) OnCapturingLinkSecured(ev capture.LinkSecuredEvent) {
	for _, o := range f.observers {
		o.OnCapturingLinkSecured(ev)
	}
	f.enqueue(func() {
		f.publish(f.topics.LinkSecured(ev.SessionID), ev, true)
		if f.metrics != nil {
			f.metrics.WriteLinkSecured(f.service, ev.StreamType.String(), ev.Secure, time.Now())
		}
		f.broadcast("link", ev)
	})
}

// Dropped returns how many events were lost to a full queue.
func (f *Fanout) Dropped() uint64 { return f.dropped.Load() }

func (f *Fanout) enqueue(job func()) {
	if f.mqtt == nil && f.metrics == nil && f.hub == nil {
		return
	}
	select {
	case f.queue <- job:
	default:
		if n := f.dropped.Add(1); n == 1 || n%100 == 0 {
			f.logger.Warn("telemetry queue full, dropping events", "dropped", n)
		}
	}
}

func (f *Fanout) publish(topic string, v any, retained bool) {
	if f.mqtt == nil {
		return
	}
	if err := f.mqtt.PublishJSON(topic, v, retained); err != nil {
		f.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (f *Fanout) broadcast(kind string, v any) {
	if f.hub != nil {
		f.hub.Broadcast(ChannelRequests, Message{Type: kind, Data: v})
	}
}

// Run delivers queued events until ctx is cancelled, then delivers what
// is already queued.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case job := <-f.queue:
			job()
		case <-ctx.Done():
			for {
				select {
				case job := <-f.queue:
					job()
				default:
					return nil
				}
			}
		}
	}
}
