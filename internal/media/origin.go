package media

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Origin is a serialized security origin such as "https://example.com" or
// "http://localhost:8080". The zero value is the opaque origin.
type Origin string

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// ParseOrigin normalises raw into scheme://host[:port]. Paths, queries and
// default ports are dropped. Non-network schemes are rejected.
func ParseOrigin(raw string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidOrigin, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidOrigin)
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if port == "" || port == defaultPorts[scheme] {
		return Origin(scheme + "://" + host), nil
	}
	return Origin(scheme + "://" + net.JoinHostPort(strings.Trim(host, "[]"), port)), nil
}

// Opaque reports whether the origin has no serialization. Opaque origins
// may not capture.
func (o Origin) Opaque() bool { return o == "" }

// Serialize returns the HMAC key form of the origin.
func (o Origin) Serialize() string { return string(o) }

func (o Origin) String() string {
	if o.Opaque() {
		return "null"
	}
	return string(o)
}

// SaltAndOrigin is the per-requester hashing context. Device ids are
// hashed with DeviceIDSalt and group ids with GroupIDSalt, both keyed by
// Origin.
type SaltAndOrigin struct {
	DeviceIDSalt string `json:"-"`
	GroupIDSalt  string `json:"-"`
	Origin       Origin `json:"origin"`
	HasFocus     bool   `json:"has_focus,omitempty"`
}

// HashDevice returns a copy of d with ID and GroupID replaced by their
// HMACs under this context.
func (s SaltAndOrigin) HashDevice(d Device) Device {
	d.ID = HMACDeviceID(s.DeviceIDSalt, s.Origin, d.ID)
	if d.GroupID != "" {
		d.GroupID = HMACDeviceID(s.GroupIDSalt, s.Origin, d.GroupID)
	}
	return d
}

// SurfaceKind classifies a desktop capture target.
type SurfaceKind int

const (
	SurfaceNone SurfaceKind = iota
	SurfaceScreen
	SurfaceWindow
	SurfaceWebContents
)

func (k SurfaceKind) String() string {
	switch k {
	case SurfaceScreen:
		return "screen"
	case SurfaceWindow:
		return "window"
	case SurfaceWebContents:
		return "web-contents"
	}
	return "none"
}

const webContentsPrefix = "web-contents-media-stream://"

// SurfaceID identifies the target of a tab, window or screen capture. Its
// string form doubles as the device id of the captured surface:
//
//	screen:<id>:<window>
//	window:<id>:<window>
//	web-contents-media-stream://<process>:<frame>
type SurfaceID struct {
	Kind     SurfaceKind
	ID       int64
	WindowID int64
	// ProcessID and FrameID are set for SurfaceWebContents.
	ProcessID int
	FrameID   int
}

// IsNull reports whether the id names no surface.
func (s SurfaceID) IsNull() bool { return s.Kind == SurfaceNone }

// Focusable reports whether focus can be moved to the captured surface.
func (s SurfaceID) Focusable() bool {
	return s.Kind == SurfaceWebContents || s.Kind == SurfaceWindow
}

func (s SurfaceID) String() string {
	switch s.Kind {
	case SurfaceScreen, SurfaceWindow:
		return fmt.Sprintf("%s:%d:%d", s.Kind, s.ID, s.WindowID)
	case SurfaceWebContents:
		return fmt.Sprintf("%s%d:%d", webContentsPrefix, s.ProcessID, s.FrameID)
	}
	return ""
}

// ParseSurfaceID parses the string form produced by SurfaceID.String.
func ParseSurfaceID(raw string) (SurfaceID, error) {
	if rest, ok := strings.CutPrefix(raw, webContentsPrefix); ok {
		var id SurfaceID
		if _, err := fmt.Sscanf(rest, "%d:%d", &id.ProcessID, &id.FrameID); err != nil {
			return SurfaceID{}, fmt.Errorf("%w: %q", ErrInvalidSurfaceID, raw)
		}
		id.Kind = SurfaceWebContents
		return id, nil
	}
	kind, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return SurfaceID{}, fmt.Errorf("%w: %q", ErrInvalidSurfaceID, raw)
	}
	var id SurfaceID
	switch kind {
	case "screen":
		id.Kind = SurfaceScreen
	case "window":
		id.Kind = SurfaceWindow
	default:
		return SurfaceID{}, fmt.Errorf("%w: %q", ErrInvalidSurfaceID, raw)
	}
	if _, err := fmt.Sscanf(rest, "%d:%d", &id.ID, &id.WindowID); err != nil {
		return SurfaceID{}, fmt.Errorf("%w: %q", ErrInvalidSurfaceID, raw)
	}
	return id, nil
}
