package media

import "crypto/rand"

// LabelLength is the length of a request label.
const LabelLength = 36

const labelAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// labelRejectAbove is the largest multiple of len(labelAlphabet) that fits
// in a byte; bytes at or above it are discarded to keep the draw uniform.
const labelRejectAbove = 256 - 256%len(labelAlphabet)

// NewLabel returns a crypto-random label of LabelLength characters drawn
// from [0-9a-zA-Z]. Uniqueness against live requests is the caller's job.
func NewLabel() string {
	out := make([]byte, 0, LabelLength)
	buf := make([]byte, LabelLength*2)
	for len(out) < LabelLength {
		// crypto/rand.Read never returns an error on supported platforms.
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if int(b) >= labelRejectAbove {
				continue
			}
			out = append(out, labelAlphabet[int(b)%len(labelAlphabet)])
			if len(out) == LabelLength {
				break
			}
		}
	}
	return string(out)
}

// ValidLabel reports whether s has the shape of a label.
func ValidLabel(s string) bool {
	if len(s) != LabelLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
