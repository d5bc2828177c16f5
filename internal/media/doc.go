// Package media defines the capture vocabulary shared by the coordinator and
// its collaborators.
//
// It covers:
//   - Stream types (microphone, camera, tab, desktop and display capture)
//   - Request categories and per-type request states
//   - The result-code taxonomy handed back to callers
//   - Devices, the {audio, video} slot pair and device sets
//   - Origin-keyed HMAC hashing of raw hardware device ids
//   - Request labels
//
// # Device Identity
//
// Raw hardware ids never leave the service. Every id handed to a caller is
//
//	hex(HMAC-SHA256(key = serialized origin, msg = raw id + salt))
//
// except the two well-known sentinels "default" and "communications", which
// pass through unchanged. There is no reverse function: a hashed id coming
// back from a caller is resolved by hashing every device in the latest
// enumeration snapshot and comparing (see ResolveHMAC).
//
// # Slots
//
// StreamDevices holds at most one audio and one video device. Both are
// addressed through Slot (SlotAudio, SlotVideo) and visited through
// ForEach, so call sites never spell out the audio/video pair by hand.
//
// # Wire Format
//
// StreamType, RequestType, RequestState and Result marshal to their
// upper-case names (for example "DEVICE_AUDIO_CAPTURE", "NO_HARDWARE") so
// JSON payloads, MQTT events and history rows stay readable. Result keeps
// its numeric values stable for interop.
package media
