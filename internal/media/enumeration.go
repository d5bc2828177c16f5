package media

// DeviceKind is the enumeration bucket a device is listed under.
type DeviceKind string

const (
	KindAudioInput  DeviceKind = "audioinput"
	KindVideoInput  DeviceKind = "videoinput"
	KindAudioOutput DeviceKind = "audiooutput"
)

// KindFor returns the enumeration kind that lists devices of type t.
// Only device capture types are enumerated.
func KindFor(t StreamType) (DeviceKind, bool) {
	switch t {
	case DeviceAudioCapture:
		return KindAudioInput, true
	case DeviceVideoCapture:
		return KindVideoInput, true
	}
	return "", false
}

// DeviceInfo is one enumerated device with its raw, unhashed ids.
type DeviceInfo struct {
	DeviceID string     `json:"device_id"`
	GroupID  string     `json:"group_id,omitempty"`
	Label    string     `json:"label"`
	Kind     DeviceKind `json:"kind"`
	// Input is the native format of audio inputs.
	Input AudioParameters `json:"input"`
}

// Enumeration is a snapshot of available devices keyed by kind.
type Enumeration map[DeviceKind][]DeviceInfo

// For returns the devices listed for type t.
func (e Enumeration) For(t StreamType) []DeviceInfo {
	kind, ok := KindFor(t)
	if !ok {
		return nil
	}
	return e[kind]
}

// Hashed returns a copy with every id hashed under so. Labels are kept.
func (e Enumeration) Hashed(so SaltAndOrigin) Enumeration {
	out := make(Enumeration, len(e))
	for kind, devices := range e {
		hashed := make([]DeviceInfo, len(devices))
		for i, d := range devices {
			d.DeviceID = HMACDeviceID(so.DeviceIDSalt, so.Origin, d.DeviceID)
			if d.GroupID != "" {
				d.GroupID = HMACDeviceID(so.GroupIDSalt, so.Origin, d.GroupID)
			}
			hashed[i] = d
		}
		out[kind] = hashed
	}
	return out
}

// ToDevice converts enumerated info into a Device of type t with raw ids.
func (d DeviceInfo) ToDevice(t StreamType) Device {
	return Device{
		Type:    t,
		ID:      d.DeviceID,
		GroupID: d.GroupID,
		Name:    d.Label,
		Input:   d.Input,
	}
}
