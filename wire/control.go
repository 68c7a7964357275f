package wire

import (
	"encoding/binary"
	"fmt"
)

// ControlType identifies the payload carried by a fabric control frame.
type ControlType uint16

const (
	ControlError ControlType = 2
)

// ErrorType enumerates the fabric-level error codes this module reacts to.
// Unrecognized values are logged and swallowed by ControlFrameHandler, not
// rejected here.
type ErrorType uint32

const (
	ErrorNone             ErrorType = 0
	ErrorMalformedAddress ErrorType = 7
)

// controlHeaderSize is the fixed size of the Control envelope this module
// understands: a 2-byte type field followed by the error body.
const controlHeaderSize = 2

// errorBodySize is the fixed size of the Error control body: the cause
// label (8 bytes) and the error type (4 bytes).
const errorBodySize = 12

// ErrorFrame is a parsed fabric control frame of type ERROR.
type ErrorFrame struct {
	CauseLabel FabricLabel
	ErrorType  ErrorType
}

// ParseControlFrame parses the control payload that follows a SwitchHeader
// whose GetMessageType is MessageTypeControl. For a control type other than
// ControlError it returns that type with a nil *ErrorFrame and a nil error.
// It returns an error for a frame too short to contain the control type
// field, and for an error frame whose body is truncated.
func ParseControlFrame(buf []byte) (ControlType, *ErrorFrame, error) {
	if len(buf) < controlHeaderSize {
		return 0, nil, fmt.Errorf("wire: control frame needs %d bytes, got %d", controlHeaderSize, len(buf))
	}
	ctype := ControlType(binary.BigEndian.Uint16(buf[0:2]))
	if ctype != ControlError {
		return ctype, nil, nil
	}
	body := buf[controlHeaderSize:]
	if len(body) < errorBodySize {
		return ctype, nil, fmt.Errorf("wire: error body needs %d bytes, got %d", errorBodySize, len(body))
	}
	return ctype, &ErrorFrame{
		CauseLabel: FabricLabel(binary.BigEndian.Uint64(body[0:8])),
		ErrorType:  ErrorType(binary.BigEndian.Uint32(body[8:12])),
	}, nil
}
