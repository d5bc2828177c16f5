package capture

import "github.com/nerrad567/capture-core/internal/media"

// continuation is the pending completion of a request. Exactly one variant
// exists per request category, and the category of a request is derived
// from its continuation, so a mismatched pair cannot be built.
type continuation interface {
	category() media.RequestType
	// fail delivers a failure result. It is the only path used for
	// failures and forced destruction.
	fail(label string, result media.Result)
}

type generateContinuation struct{ cb GenerateStreamsCallback }

func (generateContinuation) category() media.RequestType { return media.RequestGenerateStream }

func (c generateContinuation) fail(_ string, result media.Result) {
	c.cb(result, "", nil, false)
}

type getOpenContinuation struct{ cb GetOpenDeviceCallback }

func (getOpenContinuation) category() media.RequestType { return media.RequestGetOpenDevice }

func (c getOpenContinuation) fail(_ string, result media.Result) {
	c.cb(result, "", media.Device{}, false)
}

type openContinuation struct{ cb OpenDeviceCallback }

func (openContinuation) category() media.RequestType { return media.RequestOpenDevice }

func (c openContinuation) fail(label string, _ media.Result) {
	c.cb(false, label, media.Device{})
}

type accessContinuation struct{ cb AccessCallback }

func (accessContinuation) category() media.RequestType { return media.RequestDeviceAccess }

func (c accessContinuation) fail(_ string, result media.Result) {
	c.cb(nil, result)
}
