// Package frame implements the encoding of uplink and the decoding of
// downlink LoRaWAN data frames for an ABP node.
//
// Frame layout:
//
//	MHDR[1] | DevAddr[4] | FCtrl[1] | FCnt[2] | FOpts[0..15] | FPort[1] | FRMPayload | MIC[4]
//
// The encoder never adds FOpts, the decoder honours the FOptsLen value of
// the FCtrl byte.
package frame

import (
	"github.com/pkg/errors"
)

// Byte offsets within a data frame.
const (
	offsetMHDR    = 0
	offsetDevAddr = 1
	offsetFCtrl   = 5
	offsetFCnt    = 6
	offsetFPort   = 8 // when FOptsLen = 0
)

// Frame constants.
const (
	MHDRUnconfirmedDataUp   byte = 0x40
	MHDRUnconfirmedDataDown byte = 0x60

	FPortApplication byte = 0x01
	FOptsLenMask     byte = 0x0f

	// HeaderSize is the size of MHDR, FHDR (without FOpts) and FPort.
	HeaderSize = 9
	MICSize    = 4

	// DefaultMaxFrameSize is the size of the frame buffer of the node.
	DefaultMaxFrameSize = 80
)

// errors
var (
	ErrFrameTooLarge = errors.New("frame exceeds the max frame size")
	ErrFrameTooShort = errors.New("frame is too short")
	ErrInvalidMIC    = errors.New("invalid mic")
	ErrEmptyPayload  = errors.New("frame has no payload")
)

// Frame holds an encoded uplink frame.
type Frame struct {
	FCnt  uint16
	Bytes []byte
}

// MaxPayloadSize returns the max application payload size that fits in a
// frame of maxFrameSize bytes.
func MaxPayloadSize(maxFrameSize int) int {
	if n := maxFrameSize - HeaderSize - MICSize; n > 0 {
		return n
	}
	return 0
}

// Payload returns the (decrypted) payload of a frame, given the offset
// returned by Decoder.Decode.
func Payload(b []byte, offset int) []byte {
	if offset < 0 || offset > len(b)-MICSize {
		return nil
	}
	return b[offset : len(b)-MICSize]
}

// LegacyOffset collapses the result of Decoder.Decode into a single value:
// the payload offset on success or -1 on any error.
func LegacyOffset(offset int, err error) int8 {
	if err != nil || offset < 0 || offset > 127 {
		return -1
	}
	return int8(offset)
}
