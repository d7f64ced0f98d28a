package protocol

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// EncodeCommand builds an outbound frame:
//
//	'*' | code (2 hex chars) | value (%04x) | checksum (%02x) | '\r'
func EncodeCommand(code string, value uint16) ([]byte, error) {
	if len(code) != 2 || !IsHexDigit(code[0]) || !IsHexDigit(code[1]) {
		return nil, errs.Invalid("encode", "command code %q must be two hex characters", code)
	}
	frame := make([]byte, 0, 10)
	frame = append(frame, StartMarker)
	frame = append(frame, code...)
	frame = append(frame, fmt.Sprintf("%04x", value)...)
	frame = append(frame, Checksum(frame[1:])...)
	frame = append(frame, Terminator)
	return frame, nil
}

// Checksum returns the sum of data mod 256 as two lowercase hex characters.
func Checksum(data []byte) []byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return []byte(fmt.Sprintf("%02x", sum))
}

// VerifyChecksum reports whether sum is the checksum of data.
func VerifyChecksum(data, sum []byte) bool {
	return bytes.Equal(Checksum(data), sum)
}

// IsHexDigit reports whether b is in 0-9, a-f or A-F.
func IsHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// ValidateResponseFormat checks that resp is long enough and carries hex
// digits at offsets 1 through 4.
func ValidateResponseFormat(resp []byte) error {
	if len(resp) < MinResponseFrame {
		return errs.Protocol("decode", "response too short (%d bytes, need %d)", len(resp), MinResponseFrame)
	}
	for i := 1; i <= 4; i++ {
		if !IsHexDigit(resp[i]) {
			return errs.Protocol("decode", "invalid hex digit 0x%02x at position %d", resp[i], i)
		}
	}
	return nil
}

// DecodeResponseValue decodes the four hex digits at offsets 1-4 as a
// big-endian 16-bit value and folds it into the signed range.
func DecodeResponseValue(resp []byte) (int16, error) {
	if err := ValidateResponseFormat(resp); err != nil {
		return 0, err
	}
	v := 0
	for _, c := range resp[1:5] {
		v = v<<4 | hexValue(c)
	}
	if v > math.MaxInt16 {
		v -= 1 << 16
	}
	return int16(v), nil
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
