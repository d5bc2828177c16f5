package media

import (
	"encoding/json"
	"strings"
)

// Audio parameter limits applied to tab and desktop audio before open.
const (
	DefaultSampleRate  = 44100
	MaxInputSampleRate = 96000
	StereoChannels     = 2
)

// AudioEffects is a bitset of audio-processing effects a device applies.
type AudioEffects uint32

const (
	EffectEchoCanceller AudioEffects = 1 << iota
	EffectNoiseSuppression
	EffectAutomaticGainControl
	EffectHotword
)

var effectNames = []struct {
	bit  AudioEffects
	name string
}{
	{EffectEchoCanceller, "echo_canceller"},
	{EffectNoiseSuppression, "noise_suppression"},
	{EffectAutomaticGainControl, "automatic_gain_control"},
	{EffectHotword, "hotword"},
}

// Has reports whether every bit of e2 is set in e.
func (e AudioEffects) Has(e2 AudioEffects) bool { return e&e2 == e2 }

func (e AudioEffects) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, n := range effectNames {
		if e&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseAudioEffects builds a bitset from effect names such as
// "echo_canceller". Unknown names are returned in unknown.
func ParseAudioEffects(names []string) (effects AudioEffects, unknown []string) {
	for _, name := range names {
		found := false
		for _, n := range effectNames {
			if n.name == name {
				effects |= n.bit
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	return effects, unknown
}

// AudioParameters describes the input format of an audio device.
type AudioParameters struct {
	SampleRate      int          `json:"sample_rate"`
	Channels        int          `json:"channels"`
	FramesPerBuffer int          `json:"frames_per_buffer,omitempty"`
	Effects         AudioEffects `json:"effects"`
}

// Valid reports whether the parameters describe a usable format.
func (p AudioParameters) Valid() bool {
	return p.SampleRate > 0 && p.Channels > 0
}

// NormalizeForLoopback forces a sample rate inside (0, MaxInputSampleRate]
// and stereo layout. Tab and desktop audio are captured from a loopback
// path whose reported rate is not trusted.
func (p AudioParameters) NormalizeForLoopback() AudioParameters {
	if p.SampleRate <= 0 || p.SampleRate > MaxInputSampleRate {
		p.SampleRate = DefaultSampleRate
	}
	p.Channels = StereoChannels
	if p.FramesPerBuffer <= 0 {
		p.FramesPerBuffer = p.SampleRate / 100
	}
	return p
}

// Device is one capture device granted to a request. ID and GroupID are
// hashed before the device is handed to a caller; SessionID is minted by
// the device manager at open time.
type Device struct {
	Type      StreamType      `json:"type"`
	ID        string          `json:"id"`
	GroupID   string          `json:"group_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Input     AudioParameters `json:"input"`
}

// IsSameDevice reports whether d and other refer to the same open session.
func (d Device) IsSameDevice(other Device) bool {
	return d.Type == other.Type && d.ID == other.ID && d.SessionID == other.SessionID
}

// Slot addresses one half of a StreamDevices pair.
type Slot int

const (
	SlotAudio Slot = iota
	SlotVideo

	NumSlots
)

func (s Slot) String() string {
	switch s {
	case SlotAudio:
		return "audio"
	case SlotVideo:
		return "video"
	}
	return "unknown"
}

// SlotFor returns the slot a device of type t occupies.
func SlotFor(t StreamType) (Slot, bool) {
	switch {
	case t.IsAudioInput():
		return SlotAudio, true
	case t.IsVideoInput():
		return SlotVideo, true
	}
	return 0, false
}

// StreamDevices holds at most one audio and one video device.
type StreamDevices struct {
	devices [NumSlots]Device
	present [NumSlots]bool
}

// NewStreamDevices builds a pair from the given devices, placing each in
// the slot matching its type. Devices of NoService type are ignored.
func NewStreamDevices(devices ...Device) StreamDevices {
	var sd StreamDevices
	for _, d := range devices {
		if slot, ok := SlotFor(d.Type); ok {
			sd.Set(slot, d)
		}
	}
	return sd
}

// Get returns the device in slot s.
func (sd *StreamDevices) Get(s Slot) (Device, bool) {
	if s < 0 || s >= NumSlots || !sd.present[s] {
		return Device{}, false
	}
	return sd.devices[s], true
}

// Ptr returns a pointer to the device in slot s for in-place updates, or nil.
func (sd *StreamDevices) Ptr(s Slot) *Device {
	if s < 0 || s >= NumSlots || !sd.present[s] {
		return nil
	}
	return &sd.devices[s]
}

// Set stores d in slot s.
func (sd *StreamDevices) Set(s Slot, d Device) {
	sd.devices[s] = d
	sd.present[s] = true
}

// Clear empties slot s.
func (sd *StreamDevices) Clear(s Slot) {
	sd.devices[s] = Device{}
	sd.present[s] = false
}

// Empty reports whether neither slot is filled.
func (sd *StreamDevices) Empty() bool {
	for _, p := range sd.present {
		if p {
			return false
		}
	}
	return true
}

// ForEach calls fn for every filled slot, audio first.
func (sd *StreamDevices) ForEach(fn func(Slot, *Device)) {
	for s := Slot(0); s < NumSlots; s++ {
		if sd.present[s] {
			fn(s, &sd.devices[s])
		}
	}
}

type streamDevicesJSON struct {
	Audio *Device `json:"audio_device,omitempty"`
	Video *Device `json:"video_device,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (sd StreamDevices) MarshalJSON() ([]byte, error) {
	var out streamDevicesJSON
	if d, ok := sd.Get(SlotAudio); ok {
		out.Audio = &d
	}
	if d, ok := sd.Get(SlotVideo); ok {
		out.Video = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (sd *StreamDevices) UnmarshalJSON(b []byte) error {
	var in streamDevicesJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*sd = StreamDevices{}
	if in.Audio != nil {
		sd.Set(SlotAudio, *in.Audio)
	}
	if in.Video != nil {
		sd.Set(SlotVideo, *in.Video)
	}
	return nil
}

// StreamDevicesSet is the ordered list of device pairs granted to one
// request. Only display-media-set requests carry more than one pair.
type StreamDevicesSet []StreamDevices

// Each calls fn for every filled slot of every pair, in order. It is the
// single iteration path over a request's devices.
func (s StreamDevicesSet) Each(fn func(index int, slot Slot, d *Device)) {
	for i := range s {
		s[i].ForEach(func(slot Slot, d *Device) {
			fn(i, slot, d)
		})
	}
}

// Find returns the first device with type t and session id, or nil.
func (s StreamDevicesSet) Find(t StreamType, sessionID string) *Device {
	var found *Device
	s.Each(func(_ int, _ Slot, d *Device) {
		if found == nil && d.Type == t && d.SessionID == sessionID {
			found = d
		}
	})
	return found
}

// Devices flattens the set into a slice of copies.
func (s StreamDevicesSet) Devices() []Device {
	var out []Device
	s.Each(func(_ int, _ Slot, d *Device) {
		out = append(out, *d)
	})
	return out
}

// Clone returns an independent copy.
func (s StreamDevicesSet) Clone() StreamDevicesSet {
	if s == nil {
		return nil
	}
	out := make(StreamDevicesSet, len(s))
	copy(out, s)
	return out
}

// Compact drops empty pairs and returns the shortened set.
func (s StreamDevicesSet) Compact() StreamDevicesSet {
	out := s[:0]
	for i := range s {
		if !s[i].Empty() {
			out = append(out, s[i])
		}
	}
	return out
}
