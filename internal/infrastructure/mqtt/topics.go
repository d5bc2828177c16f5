package mqtt

import (
	"fmt"
	"strings"
)

// Hardware event names carried in the fourth topic level.
const (
	HardwareRemoved = "removed"
	HardwareAdded   = "added"
)

// Topics builds the capture topic tree under a configurable prefix:
//
//	{prefix}/system/status
//	{prefix}/request/{label}/state
//	{prefix}/request/{label}/outcome
//	{prefix}/session/{session_id}/link
//	{prefix}/hardware/{removed|added}/{kind}
//
// The zero value uses the "capture" prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return "capture"
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus carries the retained online/offline status and the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// RequestState carries per-stream-type state transitions of one request.
func (t Topics) RequestState(label string) string {
	return fmt.Sprintf("%s/request/%s/state", t.prefix(), label)
}

// RequestOutcome carries the single outcome of one request.
func (t Topics) RequestOutcome(label string) string {
	return fmt.Sprintf("%s/request/%s/outcome", t.prefix(), label)
}

// LinkSecured carries capturing-link security changes for a session.
func (t Topics) LinkSecured(sessionID string) string {
	return fmt.Sprintf("%s/session/%s/link", t.prefix(), sessionID)
}

// Hardware is where device agents announce hot-plug events.
//
// Example: capture/hardware/removed/audioinput
func (t Topics) Hardware(event, kind string) string {
	return fmt.Sprintf("%s/hardware/%s/%s", t.prefix(), event, kind)
}

// AllHardware matches every hot-plug event.
func (t Topics) AllHardware() string {
	return t.prefix() + "/hardware/+/+"
}

// AllRequests matches state and outcome topics of every request.
func (t Topics) AllRequests() string {
	return t.prefix() + "/request/#"
}

// ParseHardware splits a hardware topic into its event and device kind.
func (t Topics) ParseHardware(topic string) (event, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/hardware/")
	if !found {
		return "", "", false
	}
	event, kind, found = strings.Cut(rest, "/")
	if !found || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	switch event {
	case HardwareRemoved, HardwareAdded:
		return event, kind, true
	}
	return "", "", false
}
