package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

// Report collects the outcome of a frame inspection.
type Report struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Passed   []string `json:"passed,omitempty"`
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) pass(check string) {
	r.Passed = append(r.Passed, check)
}

// OK reports whether no check failed. Warnings do not count.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Summary renders the report on one line.
func (r *Report) Summary() string {
	if r.OK() {
		s := fmt.Sprintf("valid (%d checks passed", len(r.Passed))
		if len(r.Warnings) > 0 {
			s += fmt.Sprintf(", %d warnings: %s", len(r.Warnings), strings.Join(r.Warnings, "; "))
		}
		return s + ")"
	}
	return fmt.Sprintf("invalid (%d errors): %s", len(r.Errors), strings.Join(r.Errors, "; "))
}

// ValidateCommand inspects an encoded command frame.
func ValidateCommand(frame []byte) Report {
	var r Report
	if len(frame) < MinCommandFrame {
		r.fail("frame too short: %d bytes, need at least %d", len(frame), MinCommandFrame)
		return r
	}
	r.pass("length")

	if frame[0] != StartMarker {
		r.fail("missing start marker: got 0x%02x", frame[0])
	} else {
		r.pass("start marker")
	}
	if frame[len(frame)-1] != Terminator {
		r.fail("missing terminator: got 0x%02x", frame[len(frame)-1])
	} else {
		r.pass("terminator")
	}

	body := frame[1 : len(frame)-3]
	sum := frame[len(frame)-3 : len(frame)-1]
	if VerifyChecksum(body, sum) {
		r.pass("checksum")
	} else {
		r.fail("checksum mismatch: frame carries %q, computed %q", sum, Checksum(body))
	}
	return r
}

// InspectResponse inspects a raw response frame. A missing END marker is an
// error here, although the read loop also accepts frames cut short by a
// timeout.
func InspectResponse(resp []byte) Report {
	var r Report
	if len(resp) < MinResponseFrame {
		r.fail("response too short: %d bytes, need at least %d", len(resp), MinResponseFrame)
		return r
	}
	r.pass("length")

	if resp[len(resp)-1] != EndMarker {
		r.fail("missing end marker: got 0x%02x", resp[len(resp)-1])
	} else {
		r.pass("end marker")
	}

	hexOK := true
	for i := 1; i <= 4; i++ {
		if !IsHexDigit(resp[i]) {
			r.fail("invalid hex digit 0x%02x at position %d", resp[i], i)
			hexOK = false
		}
	}
	if hexOK {
		r.pass("hex digits")
	}
	if len(resp) > 6 {
		r.warn("%d trailing bytes after value", len(resp)-6)
	}
	return r
}

// Operation classifies an elapsed time for ValidateTiming.
type Operation int

const (
	OpCommand Operation = iota
	OpResponse
	OpConnection
)

func (o Operation) String() string {
	switch o {
	case OpCommand:
		return "command"
	case OpResponse:
		return "response"
	case OpConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// TimingLimit returns the longest acceptable duration for op.
func TimingLimit(op Operation) time.Duration {
	switch op {
	case OpCommand:
		return 5 * time.Second
	case OpResponse:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// ValidateTiming fails when elapsed exceeds the limit for op.
func ValidateTiming(op Operation, elapsed time.Duration) error {
	if limit := TimingLimit(op); elapsed > limit {
		return errs.Protocol("timing", "%s took %v, limit %v", op, elapsed, limit)
	}
	return nil
}
