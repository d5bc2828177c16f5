package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Well-known device ids that are never hashed.
const (
	DefaultDeviceID        = "default"
	CommunicationsDeviceID = "communications"
)

// IsSentinelDeviceID reports whether id passes through hashing unchanged.
func IsSentinelDeviceID(id string) bool {
	return id == DefaultDeviceID || id == CommunicationsDeviceID
}

// HMACDeviceID hashes a raw hardware id for one origin.
//
// Parameters:
//   - salt: per-requester salt (device or group salt)
//   - origin: the requesting origin, used as the HMAC key
//   - rawID: the hardware id reported by the enumerator
//
// Returns:
//   - string: lower-case hex of HMAC-SHA256(origin, rawID+salt), or rawID
//     itself for the sentinel ids
func HMACDeviceID(salt string, origin Origin, rawID string) string {
	if IsSentinelDeviceID(rawID) {
		return rawID
	}
	mac := hmac.New(sha256.New, []byte(origin.Serialize()))
	mac.Write([]byte(rawID)) //nolint:errcheck // hash.Hash.Write never fails
	mac.Write([]byte(salt))  //nolint:errcheck // hash.Hash.Write never fails
	return hex.EncodeToString(mac.Sum(nil))
}

// MatchesHMAC reports whether hashedID is the hash of rawID under salt and
// origin. The comparison is constant time.
func MatchesHMAC(salt string, origin Origin, hashedID, rawID string) bool {
	if hashedID == "" {
		return false
	}
	want := HMACDeviceID(salt, origin, rawID)
	return hmac.Equal([]byte(want), []byte(hashedID))
}

// ResolveHMAC finds the device in a snapshot whose raw id hashes to
// hashedID. It is a linear scan; there is no reverse function.
func ResolveHMAC(salt string, origin Origin, hashedID string, devices []DeviceInfo) (DeviceInfo, bool) {
	if hashedID == "" {
		return DeviceInfo{}, false
	}
	for _, d := range devices {
		if MatchesHMAC(salt, origin, hashedID, d.DeviceID) {
			return d, true
		}
	}
	return DeviceInfo{}, false
}
