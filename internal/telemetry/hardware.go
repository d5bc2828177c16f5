package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/capture-core/internal/infrastructure/config"
	"github.com/nerrad567/capture-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/capture-core/internal/media"
)

// ErrBadAnnouncement is returned for hot-plug messages that cannot be applied.
var ErrBadAnnouncement = errors.New("telemetry: bad hardware announcement")

// Subscriber is satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceStopper is satisfied by *capture.Coordinator.
type DeviceStopper interface {
	StopRemovedDevice(t media.StreamType, rawDeviceID string)
}

// DeviceCatalog is satisfied by *hardware.Catalog.
type DeviceCatalog interface {
	Add(d config.CatalogDevice) error
	Remove(rawID string) (media.DeviceInfo, error)
}

// Announcement is the payload of a hot-plug message. Only DeviceID is
// required for removals.
type Announcement struct {
	DeviceID   string   `json:"device_id"`
	GroupID    string   `json:"group_id,omitempty"`
	Label      string   `json:"label,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Channels   int      `json:"channels,omitempty"`
	Effects    []string `json:"effects,omitempty"`
}

// HardwareWatcher applies hot-plug announcements.
type HardwareWatcher struct {
	topics  mqtt.Topics
	stopper DeviceStopper
	catalog DeviceCatalog // nil when devices are enumerated from the OS
	logger  Logger
}

// NewHardwareWatcher creates a watcher. catalog may be nil.
func NewHardwareWatcher(topics mqtt.Topics, stopper DeviceStopper, catalog DeviceCatalog, logger Logger) *HardwareWatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HardwareWatcher{topics: topics, stopper: stopper, catalog: catalog, logger: logger}
}

// Start subscribes to every hardware topic.
func (w *HardwareWatcher) Start(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(w.topics.AllHardware(), qos, w.Handle); err != nil {
		return fmt.Errorf("subscribing to hardware events: %w", err)
	}
	return nil
}

// Handle applies one message. It is the MQTT handler installed by Start.
func (w *HardwareWatcher) Handle(topic string, payload []byte) error {
	event, kind, ok := w.topics.ParseHardware(topic)
	if !ok {
		return fmt.Errorf("%w: topic %q", ErrBadAnnouncement, topic)
	}
	var a Announcement
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("%w: %w", ErrBadAnnouncement, err)
	}
	if a.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrBadAnnouncement)
	}

	switch event {
	case mqtt.HardwareRemoved:
		return w.removed(media.DeviceKind(kind), a.DeviceID)
	case mqtt.HardwareAdded:
		return w.added(kind, a)
	}
	return nil
}

func (w *HardwareWatcher) removed(kind media.DeviceKind, id string) error {
	var t media.StreamType
	switch kind {
	case media.KindAudioInput:
		t = media.DeviceAudioCapture
	case media.KindVideoInput:
		t = media.DeviceVideoCapture
	case media.KindAudioOutput:
		// Outputs never back a capture session.
	default:
		return fmt.Errorf("%w: kind %q", ErrBadAnnouncement, kind)
	}

	if w.catalog != nil {
		if _, err := w.catalog.Remove(id); err != nil {
			w.logger.Debug("removed device was not in the catalog", "device_id", id, "error", err)
		}
	}
	if t != media.NoService {
		w.stopper.StopRemovedDevice(t, id)
	}
	w.logger.Info("device unplugged", "kind", kind, "device_id", id)
	return nil
}

func (w *HardwareWatcher) added(kind string, a Announcement) error {
	if w.catalog == nil {
		return nil
	}
	err := w.catalog.Add(config.CatalogDevice{
		ID:         a.DeviceID,
		GroupID:    a.GroupID,
		Label:      a.Label,
		Kind:       kind,
		SampleRate: a.SampleRate,
		Channels:   a.Channels,
		Effects:    a.Effects,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadAnnouncement, err)
	}
	w.logger.Info("device plugged in", "kind", kind, "device_id", a.DeviceID)
	return nil
}
