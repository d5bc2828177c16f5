package media

import "fmt"

// Result is the outcome code handed to a request's continuation.
// Numeric values are part of the wire contract and must not be reordered.
type Result int

const (
	ResultOK                     Result = 0
	ResultPermissionDenied       Result = 1
	ResultPermissionDismissed    Result = 2
	ResultInvalidState           Result = 3
	ResultNoHardware             Result = 4
	ResultInvalidSecurityOrigin  Result = 5
	ResultTabCaptureFailure      Result = 6
	ResultScreenCaptureFailure   Result = 7
	ResultCaptureFailure         Result = 8
	ResultConstraintNotSatisfied Result = 9
	ResultTrackStartFailureAudio Result = 10
	ResultTrackStartFailureVideo Result = 11
	ResultNotSupported           Result = 12
	ResultFailedDueToShutdown    Result = 13
	ResultKillSwitchOn           Result = 14
	ResultSystemPermissionDenied Result = 15
	ResultDeviceInUse            Result = 16

	numResults = 17
)

var resultNames = [numResults]string{
	"OK",
	"PERMISSION_DENIED",
	"PERMISSION_DISMISSED",
	"INVALID_STATE",
	"NO_HARDWARE",
	"INVALID_SECURITY_ORIGIN",
	"TAB_CAPTURE_FAILURE",
	"SCREEN_CAPTURE_FAILURE",
	"CAPTURE_FAILURE",
	"CONSTRAINT_NOT_SATISFIED",
	"TRACK_START_FAILURE_AUDIO",
	"TRACK_START_FAILURE_VIDEO",
	"NOT_SUPPORTED",
	"FAILED_DUE_TO_SHUTDOWN",
	"KILL_SWITCH_ON",
	"SYSTEM_PERMISSION_DENIED",
	"DEVICE_IN_USE",
}

func (r Result) String() string {
	if r < 0 || r >= numResults {
		return fmt.Sprintf("RESULT(%d)", int(r))
	}
	return resultNames[r]
}

// OK reports whether r is ResultOK.
func (r Result) OK() bool { return r == ResultOK }

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	if r < 0 || r >= numResults {
		return nil, fmt.Errorf("%w: %d", ErrUnknownResult, int(r))
	}
	return []byte(resultNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(b []byte) error {
	parsed, err := ParseResult(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseResult converts a result name back to its code.
func ParseResult(s string) (Result, error) {
	for i, name := range resultNames {
		if name == s {
			return Result(i), nil
		}
	}
	return ResultOK, fmt.Errorf("%w: %q", ErrUnknownResult, s)
}
