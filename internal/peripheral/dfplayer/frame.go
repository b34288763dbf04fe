package dfplayer

import (
	"errors"
	"fmt"
)

// Frame layout: start, version, length, command, feedback, param hi/lo,
// checksum hi/lo, end.
const (
	frameSize    = 10
	frameStart   = 0x7E
	frameVersion = 0xFF
	frameLength  = 0x06
	frameEnd     = 0xEF
)

// Command bytes used by the doorbell.
const (
	CmdPlayTrack byte = 0x03
	CmdVolume    byte = 0x06
	CmdReset     byte = 0x0C
	CmdStop      byte = 0x16
)

// Notification bytes the module sends on its own.
const (
	NotifyTrackFinished byte = 0x3D
	NotifyInitialised   byte = 0x3F
	NotifyError         byte = 0x40
)

// errorReasons names the parameter of a NotifyError frame.
var errorReasons = map[uint16]string{
	1:  "module busy",
	2:  "sleeping",
	3:  "serial receive error",
	4:  "checksum incorrect",
	5:  "track out of range",
	6:  "track not found",
	7:  "insertion error",
	8:  "card read failed",
	10: "entered sleep",
}

// ErrorReason describes a NotifyError parameter.
func ErrorReason(code uint16) string {
	if r, ok := errorReasons[code]; ok {
		return r
	}
	return fmt.Sprintf("unknown error %d", code)
}

var (
	// ErrShortFrame is returned by Decode for fewer than ten bytes.
	ErrShortFrame = errors.New("dfplayer: short frame")

	// ErrBadFrame is returned by Decode for a malformed frame.
	ErrBadFrame = errors.New("dfplayer: malformed frame")

	// ErrChecksum is returned by Decode when the checksum does not match.
	ErrChecksum = errors.New("dfplayer: checksum mismatch")
)

// Frame is one decoded module message.
type Frame struct {
	Command  byte
	Feedback bool
	Param    uint16
}

// Encode builds the ten wire bytes for a command.
func Encode(cmd byte, param uint16, feedback bool) [frameSize]byte {
	var fb byte
	if feedback {
		fb = 1
	}

	f := [frameSize]byte{
		frameStart, frameVersion, frameLength, cmd, fb,
		byte(param >> 8), byte(param), 0, 0, frameEnd,
	}
	sum := checksum(f[1:7])
	f[7] = byte(sum >> 8)
	f[8] = byte(sum)
	return f
}

// Decode parses the first ten bytes of b.
func Decode(b []byte) (Frame, error) {
	if len(b) < frameSize {
		return Frame{}, ErrShortFrame
	}
	if b[0] != frameStart || b[9] != frameEnd || b[1] != frameVersion || b[2] != frameLength {
		return Frame{}, ErrBadFrame
	}

	want := checksum(b[1:7])
	got := uint16(b[7])<<8 | uint16(b[8])
	if got != want {
		return Frame{}, fmt.Errorf("%w: got %#04x, want %#04x", ErrChecksum, got, want)
	}

	return Frame{
		Command:  b[3],
		Feedback: b[4] != 0,
		Param:    uint16(b[5])<<8 | uint16(b[6]),
	}, nil
}

// checksum is the two's complement of the byte sum from version to param lo.
func checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return -sum
}
