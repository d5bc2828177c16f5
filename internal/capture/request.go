package capture

import (
	"time"

	"github.com/nerrad567/capture-core/internal/media"
)

type transferEntry struct {
	state   media.TransferState
	started time.Time
}

// DeviceRequest is one logical capture request. It is owned by the IO
// actor and never touched from any other goroutine.
type DeviceRequest struct {
	label       string
	requester   RequesterID
	requestType media.RequestType
	userGesture bool
	controls    media.StreamControls
	salt        media.SaltAndOrigin
	selection   media.StreamSelectionInfo
	callbacks   StreamCallbacks
	createdAt   time.Time

	audioType media.StreamType
	videoType media.StreamType
	states    [media.NumStreamTypes]media.RequestState

	sets    media.StreamDevicesSet
	oldSets media.StreamDevicesSet
	// rawIDs maps session id to the unhashed hardware id it was opened with.
	rawIDs map[string]string
	// opened counts Opened() arrivals per type until every set has opened.
	opened [media.NumStreamTypes]int

	transfers  [media.NumStreamTypes]map[string]transferEntry
	shouldStop [media.NumStreamTypes]bool

	// Set for GetOpenDevice requests.
	sourceSessionID string
	transferID      string

	ui                 *UIRequest
	tabCaptureDeviceID string

	audioSubscription uint64
	videoSubscription uint64

	focusDecided bool
	focusTimer   *time.Timer

	cont continuation
}

func newDeviceRequest(requester RequesterID, salt media.SaltAndOrigin, controls media.StreamControls, cont continuation) *DeviceRequest {
	return &DeviceRequest{
		requester:   requester,
		requestType: cont.category(),
		controls:    controls,
		salt:        salt,
		rawIDs:      make(map[string]string),
		createdAt:   time.Now(),
		cont:        cont,
	}
}

// Label returns the request label.
func (r *DeviceRequest) Label() string { return r.label }

func (r *DeviceRequest) state(t media.StreamType) media.RequestState {
	if !t.Valid() {
		return media.StateNotRequested
	}
	return r.states[t]
}

// requestedTypes returns the audio and video types this request asks for.
func (r *DeviceRequest) requestedTypes() []media.StreamType {
	var out []media.StreamType
	if r.audioType.IsAudioInput() {
		out = append(out, r.audioType)
	}
	if r.videoType.IsVideoInput() {
		out = append(out, r.videoType)
	}
	return out
}

// done reports whether every requested type is DONE or ERROR.
func (r *DeviceRequest) done() bool {
	for _, t := range r.requestedTypes() {
		if !r.states[t].Settled() {
			return false
		}
	}
	return true
}

// failed reports whether every requested type ended in ERROR.
func (r *DeviceRequest) failed() bool {
	types := r.requestedTypes()
	for _, t := range types {
		if r.states[t] != media.StateError {
			return false
		}
	}
	return len(types) > 0
}

// takeContinuation returns the pending continuation and clears it so it
// can only run once.
func (r *DeviceRequest) takeContinuation() continuation {
	c := r.cont
	r.cont = nil
	return c
}

// firstDevice returns the first device in slot s across all sets.
func (r *DeviceRequest) firstDevice(s media.Slot) (media.Device, bool) {
	for i := range r.sets {
		if d, ok := r.sets[i].Get(s); ok {
			return d, true
		}
	}
	return media.Device{}, false
}

func (r *DeviceRequest) isStreamCategory() bool {
	switch r.requestType {
	case media.RequestGenerateStream, media.RequestDeviceUpdate, media.RequestGetOpenDevice:
		return true
	}
	return false
}

func (r *DeviceRequest) snapshot() RequestSnapshot {
	s := RequestSnapshot{
		Label:       r.label,
		Requester:   r.requester,
		RequestType: r.requestType,
		Origin:      r.salt.Origin,
		AudioType:   r.audioType,
		VideoType:   r.videoType,
		States:      make(map[media.StreamType]media.RequestState),
		Devices:     r.sets.Clone(),
		CreatedAt:   r.createdAt,
	}
	for t := media.NoService + 1; t < media.NumStreamTypes; t++ {
		if st := r.states[t]; st != media.StateNotRequested {
			s.States[t] = st
		}
		for id, e := range r.transfers[t] {
			if s.Transfers == nil {
				s.Transfers = make(map[string]media.TransferState)
			}
			s.Transfers[id] = e.state
		}
	}
	return s
}
