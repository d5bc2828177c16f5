package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// RegisterTab makes a tab capture id resolvable to a tab.
func (b *Broker) RegisterTab(captureDeviceID string, tab media.SurfaceID) {
	b.mu.Lock()
	b.tabs[captureDeviceID] = tab
	b.mu.Unlock()
}

// ResolveTabCapture implements capture.UIProxy. Registered ids are
// consumed on use; a web-contents surface string resolves to itself.
func (b *Broker) ResolveTabCapture(_ capture.RequesterID, captureDeviceID string) (media.SurfaceID, error) {
	b.mu.Lock()
	tab, ok := b.tabs[captureDeviceID]
	if ok {
		delete(b.tabs, captureDeviceID)
	}
	b.mu.Unlock()
	if ok {
		return tab, nil
	}

	if s, err := media.ParseSurfaceID(captureDeviceID); err == nil && s.Kind == media.SurfaceWebContents {
		return s, nil
	}
	return media.SurfaceID{}, fmt.Errorf("%w: %q", ErrUnknownTab, captureDeviceID)
}

// OnStarted implements capture.UIProxy.
func (b *Broker) OnStarted(info capture.StartedInfo) {
	b.mu.Lock()
	b.streams[info.Label] = info
	b.mu.Unlock()
	b.logger.Info("stream started", "label", info.Label, "devices", len(info.Devices))
	b.hub.Broadcast(ChannelStream, Event{Type: "stream.started", Label: info.Label, Devices: info.Devices, Time: b.now()})
}

// OnDeviceStopped implements capture.UIProxy. A stream whose last device
// stopped is forgotten.
func (b *Broker) OnDeviceStopped(label string, device media.Device) {
	b.mu.Lock()
	if info, ok := b.streams[label]; ok {
		info.Devices = slices.DeleteFunc(slices.Clone(info.Devices), device.IsSameDevice)
		if len(info.Devices) == 0 {
			delete(b.streams, label)
		} else {
			b.streams[label] = info
		}
	}
	b.mu.Unlock()
	b.hub.Broadcast(ChannelStream, Event{Type: "stream.device_stopped", Label: label, Devices: []media.Device{device}, Time: b.now()})
}

// OnDeviceStoppedForSourceChange implements capture.UIProxy.
func (b *Broker) OnDeviceStoppedForSourceChange(label string, device media.Device, next media.SurfaceID) {
	b.hub.Broadcast(ChannelStream, Event{
		Type:    "stream.source_changing",
		Label:   label,
		Devices: []media.Device{device},
		Surface: next.String(),
		Time:    b.now(),
	})
}

// SetFocus implements capture.UIProxy.
func (b *Broker) SetFocus(surface media.SurfaceID, focus bool) {
	b.mu.Lock()
	b.focus[surface] = focus
	b.mu.Unlock()
	b.logger.Debug("captured surface focus", "surface", surface.String(), "focus", focus)
	b.hub.Broadcast(ChannelStream, Event{Type: "surface.focus", Surface: surface.String(), Focus: &focus, Time: b.now()})
}

// ActivateSurface implements capture.UIProxy.
func (b *Broker) ActivateSurface(surface media.SurfaceID) {
	b.hub.Broadcast(ChannelStream, Event{Type: "surface.activated", Surface: surface.String(), Time: b.now()})
}

// Focused reports the last focus decision applied to surface.
func (b *Broker) Focused(surface media.SurfaceID) (focus, known bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	focus, known = b.focus[surface]
	return focus, known
}

// StreamView is a running stream as seen from the browser side.
type StreamView struct {
	Label           string         `json:"label"`
	Devices         []media.Device `json:"devices"`
	CanChangeSource bool           `json:"can_change_source"`
}

// Streams lists running streams ordered by label.
func (b *Broker) Streams() []StreamView {
	b.mu.Lock()
	out := make([]StreamView, 0, len(b.streams))
	for _, info := range b.streams {
		out = append(out, StreamView{
			Label:           info.Label,
			Devices:         slices.Clone(info.Devices),
			CanChangeSource: info.ChangeSource != nil,
		})
	}
	b.mu.Unlock()
	slices.SortFunc(out, func(a, c StreamView) int { return strings.Compare(a.Label, c.Label) })
	return out
}

// Stop ends a running stream through the control handed over at start.
func (b *Broker) Stop(label string) bool {
	b.mu.Lock()
	info, ok := b.streams[label]
	b.mu.Unlock()
	if !ok || info.Stop == nil {
		return false
	}
	info.Stop()
	return true
}

// ChangeSource switches the shared surface of a running stream.
func (b *Broker) ChangeSource(label string, next media.SurfaceID) bool {
	b.mu.Lock()
	info, ok := b.streams[label]
	b.mu.Unlock()
	if !ok || info.ChangeSource == nil {
		return false
	}
	info.ChangeSource(next)
	return true
}

// RequestStateChange relays a pause or play of one device of a running stream.
func (b *Broker) RequestStateChange(label, deviceID string, change media.StreamStateChange) bool {
	b.mu.Lock()
	info, ok := b.streams[label]
	b.mu.Unlock()
	if !ok || info.StateChange == nil {
		return false
	}
	info.StateChange(deviceID, change)
	return true
}

var _ capture.UIProxy = (*Broker)(nil)
