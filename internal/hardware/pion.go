package hardware

import (
	"context"
	"sync"

	"github.com/pion/mediadevices"

	"github.com/nerrad567/capture-core/internal/media"
)

// Native format assumed for pion audio inputs; drivers only report it once
// a track is opened.
const (
	pionSampleRate = 48000
	pionChannels   = 1
)

// PionEnumerator lists devices through the pion/mediadevices driver
// manager. Only drivers registered by the binary's imports are visible,
// and the driver manager knows no audio outputs.
type PionEnumerator struct {
	enumerate func() []mediadevices.MediaDeviceInfo

	mu   sync.RWMutex
	last []media.DeviceInfo
}

// NewPionEnumerator creates an enumerator over the registered drivers.
func NewPionEnumerator() *PionEnumerator {
	return &PionEnumerator{enumerate: mediadevices.EnumerateDevices}
}

// EnumerateDevices implements capture.Enumerator.
func (p *PionEnumerator) EnumerateDevices(ctx context.Context, kinds []media.DeviceKind) (media.Enumeration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := p.refresh()

	out := make(media.Enumeration, len(kinds))
	for _, kind := range kinds {
		list := []media.DeviceInfo{}
		for _, d := range all {
			if d.Kind == kind {
				list = append(list, d)
			}
		}
		out[kind] = list
	}
	return out, nil
}

// Lookup resolves a raw id against the most recent enumeration.
func (p *PionEnumerator) Lookup(rawID string) (media.DeviceInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.last {
		if d.DeviceID == rawID {
			return d, true
		}
	}
	return media.DeviceInfo{}, false
}

func (p *PionEnumerator) refresh() []media.DeviceInfo {
	var out []media.DeviceInfo
	for _, d := range p.enumerate() {
		info := media.DeviceInfo{DeviceID: d.DeviceID, Label: d.Label}
		switch d.Kind {
		case mediadevices.AudioInput:
			info.Kind = media.KindAudioInput
			info.Input = media.AudioParameters{
				SampleRate:      pionSampleRate,
				Channels:        pionChannels,
				FramesPerBuffer: pionSampleRate / 100, //nolint:mnd // 10ms buffers
			}
		case mediadevices.VideoInput:
			info.Kind = media.KindVideoInput
		default:
			continue
		}
		out = append(out, info)
	}

	p.mu.Lock()
	p.last = out
	p.mu.Unlock()
	return out
}
