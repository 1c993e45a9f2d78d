package test

import (
	"context"

	"github.com/brocaar/chirpstack-node/internal/backend/transport"
)

// TransportBackend is a test transport backend.
type TransportBackend struct {
	UplinkFrameChan   chan transport.UplinkFrame
	downlinkFrameChan chan transport.DownlinkFrame

	// SendUplinkFrameError is returned by SendUplinkFrame when set.
	SendUplinkFrameError error
}

// NewTransportBackend returns a new TransportBackend.
func NewTransportBackend() *TransportBackend {
	return &TransportBackend{
		UplinkFrameChan:   make(chan transport.UplinkFrame, 100),
		downlinkFrameChan: make(chan transport.DownlinkFrame, 100),
	}
}

// SendUplinkFrame method.
func (b *TransportBackend) SendUplinkFrame(ctx context.Context, pl transport.UplinkFrame) error {
	if b.SendUplinkFrameError != nil {
		return b.SendUplinkFrameError
	}
	b.UplinkFrameChan <- pl
	return nil
}

// DownlinkFrameChan method.
func (b *TransportBackend) DownlinkFrameChan() chan transport.DownlinkFrame {
	return b.downlinkFrameChan
}

// Close method.
func (b *TransportBackend) Close() error {
	if b.downlinkFrameChan != nil {
		close(b.downlinkFrameChan)
	}
	return nil
}
