package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		text string
	}{
		{"io", IO("read", io.ErrUnexpectedEOF), ErrIO, "io error: read: unexpected EOF"},
		{"serial", Serial("open", errors.New("busy")), ErrSerial, "serial error: open: busy"},
		{"protocol", Protocol("decode", "response too short (%d bytes)", 3), ErrProtocol, "protocol error: decode: response too short (3 bytes)"},
		{"device", Device("", "no compatible serial ports found"), ErrDevice, "device error: no compatible serial ports found"},
		{"invalid", Invalid("set_mode", "bad"), ErrInvalidInput, "invalid input: set_mode: bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.text, tt.err.Error())
			assert.Equal(t, tt.kind.Error(), KindOf(tt.err))
		})
	}
}

func TestWrappedCauseAndKindSurviveFmtWrap(t *testing.T) {
	err := fmt.Errorf("probe /dev/ttyUSB0: %w", IO("write", io.ErrClosedPipe))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.NotErrorIs(t, err, ErrProtocol)

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, "write", e.Op)
}

func TestKindOfForeign(t *testing.T) {
	assert.Equal(t, "error", KindOf(errors.New("plain")))
}
