package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/capture-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "capture-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "studio",
	}
}

// offlineClient returns a client that was never connected.
func offlineClient() *Client {
	cfg := testConfig()
	return &Client{
		client:        pahomqtt.NewClient(buildClientOptions(cfg)),
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// ─── Topics ──────────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "studio"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "studio/system/status"},
		{"RequestState", topics.RequestState("abc"), "studio/request/abc/state"},
		{"RequestOutcome", topics.RequestOutcome("abc"), "studio/request/abc/outcome"},
		{"LinkSecured", topics.LinkSecured("s-1"), "studio/session/s-1/link"},
		{"Hardware", topics.Hardware(HardwareRemoved, "audioinput"), "studio/hardware/removed/audioinput"},
		{"AllHardware", topics.AllHardware(), "studio/hardware/+/+"},
		{"AllRequests", topics.AllRequests(), "studio/request/#"},
		{"default prefix", Topics{}.SystemStatus(), "capture/system/status"},
		{"trailing slash", Topics{Prefix: "a/"}.SystemStatus(), "a/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseHardware(t *testing.T) {
	topics := Topics{Prefix: "studio"}
	tests := []struct {
		topic     string
		wantEvent string
		wantKind  string
		wantOK    bool
	}{
		{"studio/hardware/removed/audioinput", HardwareRemoved, "audioinput", true},
		{"studio/hardware/added/videoinput", HardwareAdded, "videoinput", true},
		{"studio/hardware/exploded/videoinput", "", "", false},
		{"studio/hardware/removed", "", "", false},
		{"studio/hardware/removed/a/b", "", "", false},
		{"other/hardware/removed/audioinput", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			event, kind, ok := topics.ParseHardware(tt.topic)
			if event != tt.wantEvent || kind != tt.wantKind || ok != tt.wantOK {
				t.Errorf("ParseHardware() = %q, %q, %v; want %q, %q, %v",
					event, kind, ok, tt.wantEvent, tt.wantKind, tt.wantOK)
			}
		})
	}
}

// ─── Options ─────────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "cap", Password: "pw"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "capture-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "cap" || opts.Password != "pw" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS not configured")
	}
	if !opts.WillEnabled || opts.WillTopic != "studio/system/status" || !opts.WillRetained {
		t.Errorf("will = %v %q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will statusPayload
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != "offline" || will.Reason != "unexpected_disconnect" {
		t.Errorf("will = %+v", will)
	}
}

func TestBuildStatus(t *testing.T) {
	var got statusPayload
	if err := json.Unmarshal(buildStatus("c1", "online", ""), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "online" || got.ClientID != "c1" || got.Timestamp == "" {
		t.Errorf("status = %+v", got)
	}
	if strings.Contains(string(buildStatus("c1", "online", "")), "reason") {
		t.Error("empty reason was encoded")
	}
}

// ─── Validation ──────────────────────────────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c := offlineClient()
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"offline", "t", []byte("{}"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_Unencodable(t *testing.T) {
	c := offlineClient()
	err := c.PublishJSON("t", map[string]any{"ch": make(chan int)}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := offlineClient()
	noop := func(string, []byte) error { return nil }
	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"bad qos", "t", 5, noop, ErrInvalidQoS},
		{"nil handler", "t", 1, nil, ErrSubscribeFailed},
		{"offline", "t", 1, noop, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes", c.SubscriptionCount())
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
	if err := c.Unsubscribe("t"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() offline error = %v", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := offlineClient()
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}

// ─── Handlers ────────────────────────────────────────────────────────

func TestWrapHandler(t *testing.T) {
	c := offlineClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "a/b", payload: []byte("1")})
	if got != "a/b=1" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("bad payload") })(nil, fakeMessage{topic: "x"})
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "y"})

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns = %v, errors = %v; want one of each", logger.warns, logger.errors)
	}
}

func TestWrapHandler_NoLogger(t *testing.T) {
	c := offlineClient()
	// Must not panic without a logger.
	c.wrapHandler(func(string, []byte) error { panic("boom") })(nil, fakeMessage{topic: "y"})
}
