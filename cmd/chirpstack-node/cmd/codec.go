package cmd

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/frame"
	"github.com/brocaar/chirpstack-node/internal/session"
	"github.com/brocaar/lorawan"
)

// encodeFrame encodes the given payload as uplink frame using the node
// session from the given configuration and the given frame-counter.
func encodeFrame(ctx context.Context, c config.Config, fCnt uint16, payload []byte) (frame.Frame, error) {
	s := session.New(c.Node.DevAddr, c.Node.NwkSKey, c.Node.AppSKey, fCnt)

	var opts []frame.EncoderOption
	if c.Node.MaxFrameSize != 0 {
		opts = append(opts, frame.WithMaxFrameSize(c.Node.MaxFrameSize))
	}

	return frame.NewEncoder(s, crypto.NewLoRaWANCipher(), crypto.NewLoRaWANMIC(), opts...).Encode(ctx, payload)
}

// decodeFrame validates and decrypts the given frame. It returns the FPort
// and the decrypted FRMPayload.
func decodeFrame(ctx context.Context, c config.Config, dir crypto.Direction, b []byte) (uint8, []byte, error) {
	s := session.New(c.Node.DevAddr, c.Node.NwkSKey, c.Node.AppSKey, 0)
	d := frame.NewDecoder(s, crypto.NewLoRaWANCipher(), crypto.NewLoRaWANMIC(), frame.WithDirection(dir))

	offset, err := d.Decode(ctx, b)
	if err != nil {
		return 0, nil, err
	}

	return b[offset-1], frame.Payload(b, offset), nil
}

// frameHeader returns the MHDR and MIC of the given frame.
func frameHeader(b []byte) (lorawan.MHDR, lorawan.MIC, error) {
	phy, err := frame.Inspect(b)
	if err != nil {
		return lorawan.MHDR{}, lorawan.MIC{}, err
	}
	return phy.MHDR, phy.MIC, nil
}

// parseBytes parses the given hex or base64 encoded string.
func parseBytes(s string, b64 bool) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b64 {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(err, "decode base64 error")
		}
		return b, nil
	}

	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode hex error")
	}
	return b, nil
}
