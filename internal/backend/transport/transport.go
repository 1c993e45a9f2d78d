// Package transport defines the interface of the backend carrying the
// frames of the node, i.e. the radio or a network bridge standing in for it.
package transport

import (
	"context"

	"github.com/brocaar/lorawan"
)

var backend Transport

// Backend returns the transport backend.
func Backend() Transport {
	return backend
}

// SetBackend sets the given transport backend.
func SetBackend(b Transport) {
	backend = b
}

// UplinkFrame contains an encoded uplink frame.
type UplinkFrame struct {
	DevAddr    lorawan.DevAddr `json:"devAddr"`
	FCnt       uint16          `json:"fCnt"`
	PHYPayload []byte          `json:"phyPayload"`
}

// DownlinkFrame contains a received (still encrypted) downlink frame.
type DownlinkFrame struct {
	DevAddr    lorawan.DevAddr `json:"devAddr"`
	PHYPayload []byte          `json:"phyPayload"`
}

// Transport is the interface of a transport backend.
type Transport interface {
	SendUplinkFrame(context.Context, UplinkFrame) error // send the given uplink frame
	DownlinkFrameChan() chan DownlinkFrame              // channel containing the received downlink frames
	Close() error                                       // close the transport backend
}
