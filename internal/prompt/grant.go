package prompt

import (
	"context"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

// loopbackDeviceID is the device id of system audio capture.
const loopbackDeviceID = "loopback"

const screenLookupTimeout = 2 * time.Second

// grant builds the OK answer for req. Explicit picks in d win over the ids
// the request asked for, which win over the first offered device. A
// requested type with nothing to pick fails the prompt with NO_HARDWARE.
func (b *Broker) grant(req capture.UIRequest, d Decision) capture.UIResponse {
	if req.VideoType == media.DisplayVideoCaptureSet && len(req.Screens) > 0 {
		set := make(media.StreamDevicesSet, 0, len(req.Screens))
		for _, s := range req.Screens {
			set = append(set, media.NewStreamDevices(surfaceDevice(req.VideoType, s)))
		}
		return capture.UIResponse{Result: media.ResultOK, Devices: set}
	}

	var sd media.StreamDevices
	var surface media.SurfaceID

	if req.VideoType.IsVideoInput() {
		dev, ok := b.pickVideo(req, d.VideoDeviceID)
		if !ok {
			return capture.UIResponse{Result: media.ResultNoHardware}
		}
		if req.VideoType.IsScreenCapture() {
			surface, _ = media.ParseSurfaceID(dev.ID) //nolint:errcheck // picks are surface strings
		}
		sd.Set(media.SlotVideo, dev)
	}

	if req.AudioType.IsAudioInput() {
		dev, ok := pickAudio(req, d.AudioDeviceID, surface)
		switch {
		case ok:
			sd.Set(media.SlotAudio, dev)
		case req.AudioType == media.DeviceAudioCapture:
			return capture.UIResponse{Result: media.ResultNoHardware}
		}
	}

	if sd.Empty() {
		return capture.UIResponse{Result: media.ResultNoHardware}
	}
	return capture.UIResponse{Result: media.ResultOK, Devices: media.StreamDevicesSet{sd}}
}

func (b *Broker) pickVideo(req capture.UIRequest, pick string) (media.Device, bool) {
	t := req.VideoType
	if t == media.DeviceVideoCapture {
		return pickDevice(req.Available[media.KindVideoInput], t, pick, req.RequestedVideoDeviceID)
	}

	id := pick
	if id == "" {
		id = req.RequestedVideoDeviceID
	}
	if id == "" {
		if t.IsTabCapture() {
			return media.Device{}, false
		}
		id = b.defaultSurface().String()
	}
	s, err := media.ParseSurfaceID(id)
	if err != nil {
		// Tab capture ids are resolved by the coordinator and may be opaque.
		return media.Device{Type: t, ID: id, Name: "tab"}, true
	}
	return surfaceDevice(t, s), true
}

// pickAudio chooses the audio half. Loopback audio follows the shared
// surface: a tab shares its own audio, anything else shares system audio
// unless the request excludes it for screens.
func pickAudio(req capture.UIRequest, pick string, surface media.SurfaceID) (media.Device, bool) {
	t := req.AudioType
	if t == media.DeviceAudioCapture {
		return pickDevice(req.Available[media.KindAudioInput], t, pick, req.RequestedAudioDeviceID)
	}
	if surface.Kind == media.SurfaceWebContents {
		return media.Device{Type: t, ID: surface.String(), Name: "Tab audio"}, true
	}
	if req.ExcludeSystemAudio && surface.Kind == media.SurfaceScreen {
		return media.Device{}, false
	}
	id := req.RequestedAudioDeviceID
	if id == "" {
		id = loopbackDeviceID
	}
	return media.Device{Type: t, ID: id, Name: "System audio"}, true
}

func pickDevice(list []media.DeviceInfo, t media.StreamType, ids ...string) (media.Device, bool) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		for _, info := range list {
			if info.DeviceID == id {
				return info.ToDevice(t), true
			}
		}
	}
	if len(list) == 0 {
		return media.Device{}, false
	}
	return list[0].ToDevice(t), true
}

func surfaceDevice(t media.StreamType, s media.SurfaceID) media.Device {
	return media.Device{Type: t, ID: s.String(), Name: s.Kind.String()}
}

// defaultSurface is the first screen, or screen 0 without an enumerator.
func (b *Broker) defaultSurface() media.SurfaceID {
	fallback := media.SurfaceID{Kind: media.SurfaceScreen}
	if b.screens == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), screenLookupTimeout)
	defer cancel()
	screens, err := b.screens.EnumerateScreens(ctx)
	if err != nil || len(screens) == 0 {
		return fallback
	}
	return screens[0]
}
