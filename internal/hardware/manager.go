package hardware

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/capture-core/internal/media"
)

// Logger defines the logging interface used by Manager.
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

// Listener receives session lifecycle events. The capture coordinator
// implements it.
type Listener interface {
	Opened(t media.StreamType, sessionID string)
	Closed(t media.StreamType, sessionID string)
	Aborted(t media.StreamType, sessionID string)
}

type noopListener struct{}

func (noopListener) Opened(media.StreamType, string)  {}
func (noopListener) Closed(media.StreamType, string)  {}
func (noopListener) Aborted(media.StreamType, string) {}

// DeviceSource resolves raw device ids. Catalog and PionEnumerator implement it.
type DeviceSource interface {
	Lookup(rawID string) (media.DeviceInfo, bool)
}

// Class is the half of the device space a Manager serves.
type Class int

const (
	ClassAudio Class = iota
	ClassVideo
)

func (c Class) String() string {
	if c == ClassVideo {
		return "video"
	}
	return "audio"
}

func (c Class) accepts(t media.StreamType) bool {
	if c == ClassVideo {
		return t.IsVideoInput()
	}
	return t.IsAudioInput()
}

type session struct {
	device media.Device
	opened bool
	timer  *time.Timer
}

// Manager is a simulated device manager for one Class. Sessions open after
// a fixed delay; device capture of an id the source does not know aborts.
//
// Thread Safety: all methods are safe for concurrent use. Listener calls
// are made without the manager lock held.
type Manager struct {
	class  Class
	source DeviceSource
	delay  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	listener Listener
	logger   Logger

	newSessionID func() string
}

// NewManager creates a manager. source may be nil, in which case device
// capture accepts any id.
func NewManager(class Class, source DeviceSource, openDelay time.Duration) *Manager {
	return &Manager{
		class:        class,
		source:       source,
		delay:        openDelay,
		sessions:     make(map[string]*session),
		listener:     noopListener{},
		logger:       noopLogger{},
		newSessionID: uuid.NewString,
	}
}

// SetListener sets who is told about opened, closed and aborted sessions.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Open implements capture.DeviceManager. The returned session reports
// Opened or Aborted later, never before Open returns.
func (m *Manager) Open(d media.Device) string {
	sid := m.newSessionID()
	d.SessionID = sid

	m.mu.Lock()
	s := &session{device: d}
	m.sessions[sid] = s
	s.timer = time.AfterFunc(m.delay, func() { m.complete(sid) })
	m.mu.Unlock()

	m.logger.Debug("opening device",
		"class", m.class,
		"stream_type", d.Type,
		"session_id", sid,
	)
	return sid
}

// complete finishes opening a session.
func (m *Manager) complete(sid string) {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	if !ok || s.opened {
		m.mu.Unlock()
		return
	}
	d, err := m.resolve(s.device)
	if err != nil {
		delete(m.sessions, sid)
		l := m.listener
		m.mu.Unlock()
		m.logger.Warn("device open failed", "session_id", sid, "device_id", s.device.ID, "error", err)
		l.Aborted(s.device.Type, sid)
		return
	}
	s.device = d
	s.opened = true
	l := m.listener
	m.mu.Unlock()

	m.logger.Info("device opened", "class", m.class, "stream_type", d.Type, "session_id", sid)
	l.Opened(d.Type, sid)
}

// resolve fills hardware-reported parameters into d.
func (m *Manager) resolve(d media.Device) (media.Device, error) {
	if !m.class.accepts(d.Type) {
		return d, ErrInvalidDevice
	}
	switch {
	case d.Type.IsDevice():
		if m.source == nil {
			break
		}
		info, ok := m.source.Lookup(d.ID)
		if !ok {
			return d, ErrUnknownDevice
		}
		if d.Name == "" {
			d.Name = info.Label
		}
		if m.class == ClassAudio {
			d.Input = info.Input
		}
	case m.class == ClassAudio:
		d.Input = d.Input.NormalizeForLoopback()
	}
	return d, nil
}

// Close implements capture.DeviceManager. Unknown sessions are ignored.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		s.timer.Stop()
	}
	l := m.listener
	m.mu.Unlock()

	if !ok {
		return
	}
	m.logger.Debug("device closed", "class", m.class, "session_id", sessionID)
	l.Closed(s.device.Type, sessionID)
}

// OpenedDevice implements capture.DeviceManager.
func (m *Manager) OpenedDevice(sessionID string) (media.Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.opened {
		return media.Device{}, false
	}
	return s.device, true
}

// Fail aborts a session as if the hardware had reported an error.
func (m *Manager) Fail(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		s.timer.Stop()
	}
	l := m.listener
	m.mu.Unlock()

	if ok {
		m.logger.Warn("device failed", "class", m.class, "session_id", sessionID)
		l.Aborted(s.device.Type, sessionID)
	}
	return ok
}

// Sessions returns every session, opened or opening, ordered by session id.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Session{Device: s.device, Opened: s.opened})
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b Session) int {
		return strings.Compare(a.Device.SessionID, b.Device.SessionID)
	})
	return out
}

// Session is a read-only view of one session.
type Session struct {
	Device media.Device `json:"device"`
	Opened bool         `json:"opened"`
}
