// Package protocol defines the wire-level shapes the dispatcher (C9)
// consumes and produces: the decoded frame header, the function-id space,
// and the per-function request/response/callback body structs. The codec
// that turns bytes on the stream socket into these structs, and the
// socket accept/read/write loop itself, are out of scope per spec.md §1 —
// this package only defines the already-decoded shapes that flow through
// handle_request/dispatch_response.
package protocol

import "github.com/Tinkerforge/red-brick-apid/internal/apierr"

// Header is the packet header spec.md §6 describes as externally decoded:
// 8 bytes, little-endian, packed with no padding.
type Header struct {
	UID              uint32
	Length           uint8
	FunctionID       FunctionID
	SequenceNumber   uint8 // 4 bits on the wire
	ResponseExpected bool  // 1 bit on the wire
	ErrorCode        apierr.Code
}

// DaemonUID is the fixed UID callback frames carry, per spec.md §6
// ("Callback frames use UID = daemon UID and sequence number 0").
const DaemonUID uint32 = 2

// NewResponseHeader builds a response header copying the sequence number
// and UID from the originating request, per spec.md §4.8.
func NewResponseHeader(req Header, length uint8, code apierr.Code) Header {
	return Header{
		UID:              req.UID,
		Length:           length,
		FunctionID:       req.FunctionID,
		SequenceNumber:   req.SequenceNumber,
		ResponseExpected: true,
		ErrorCode:        code,
	}
}

// NewCallbackHeader builds a callback frame's header: daemon UID, sequence
// number 0, per spec.md §6's glossary entry for "Callback frame".
func NewCallbackHeader(functionID FunctionID, length uint8) Header {
	return Header{
		UID:            DaemonUID,
		Length:         length,
		FunctionID:     functionID,
		SequenceNumber: 0,
	}
}
