package frame

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/chirpstack-node/internal/session"
)

var decodeTasks = []func(*decodeContext) error{
	validateMinFrameSize,
	setFCnt,
	validateMIC,
	setPayloadOffset,
	decryptFRMPayload,
}

type decodeContext struct {
	ctx context.Context

	decoder       *Decoder
	b             []byte
	fCnt          uint16
	payloadEnd    int
	payloadOffset int
}

// DecoderOption configures the Decoder.
type DecoderOption func(*Decoder)

// WithDirection sets the direction used for the MIC and payload decryption.
// This defaults to crypto.Downlink, crypto.Uplink makes it possible to
// decode frames produced by the Encoder.
func WithDirection(dir crypto.Direction) DecoderOption {
	return func(d *Decoder) {
		d.direction = dir
	}
}

// Decoder validates and decrypts downlink data frames.
type Decoder struct {
	session   *session.Session
	cipher    crypto.Cipher
	mic       crypto.MIC
	direction crypto.Direction
}

// NewDecoder creates a new Decoder.
func NewDecoder(s *session.Session, c crypto.Cipher, m crypto.MIC, opts ...DecoderOption) *Decoder {
	d := Decoder{
		session:   s,
		cipher:    c,
		mic:       m,
		direction: crypto.Downlink,
	}

	for _, o := range opts {
		o(&d)
	}

	return &d
}

// Decode validates the MIC of the given frame and decrypts its payload
// in-place. It returns the offset of the payload within b. The payload ends
// where the MIC starts (see Payload).
//
// The frame-counter of the frame is used as-is, the session uplink
// frame-counter is never touched.
//
// ctx must be non-nil, pass context.Background() when there is no request
// context.
func (d *Decoder) Decode(ctx context.Context, b []byte) (int, error) {
	dctx := decodeContext{
		ctx:     ctx,
		decoder: d,
		b:       b,
	}

	for _, t := range decodeTasks {
		if err := t(&dctx); err != nil {
			decodeCounter(errors.Cause(err)).Inc()
			log.WithError(err).WithFields(log.Fields{
				"dev_addr": d.session.DevAddr,
				"f_cnt":    dctx.fCnt,
				"ctx_id":   logging.ContextID(ctx),
			}).Info("frame: decode frame error")
			return -1, err
		}
	}

	decodeCounter(nil).Inc()
	log.WithFields(log.Fields{
		"dev_addr":       d.session.DevAddr,
		"f_cnt":          dctx.fCnt,
		"payload_offset": dctx.payloadOffset,
		"payload_size":   dctx.payloadEnd - dctx.payloadOffset,
		"ctx_id":         logging.ContextID(ctx),
	}).Debug("frame: frame decoded")

	return dctx.payloadOffset, nil
}

func validateMinFrameSize(ctx *decodeContext) error {
	// MHDR + FHDR without FOpts + MIC
	if len(ctx.b) < offsetFPort+MICSize {
		return errors.Wrapf(ErrFrameTooShort, "%d bytes", len(ctx.b))
	}
	if len(ctx.b) > 255 {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(ctx.b))
	}
	return nil
}

func setFCnt(ctx *decodeContext) error {
	ctx.fCnt = binary.LittleEndian.Uint16(ctx.b[offsetFCnt : offsetFCnt+2])
	ctx.payloadEnd = len(ctx.b) - MICSize
	return nil
}

func validateMIC(ctx *decodeContext) error {
	s := ctx.decoder.session
	mic, err := ctx.decoder.mic.Compute(s.NwkSKey, s.DevAddr, ctx.fCnt, ctx.decoder.direction, ctx.b[:ctx.payloadEnd])
	if err != nil {
		return errors.Wrap(err, "calculate mic error")
	}

	for i := len(mic) - 1; i >= 0; i-- {
		if mic[i] != ctx.b[ctx.payloadEnd+i] {
			return ErrInvalidMIC
		}
	}

	return nil
}

func setPayloadOffset(ctx *decodeContext) error {
	ctx.payloadOffset = offsetFPort + 1 + int(ctx.b[offsetFCtrl]&FOptsLenMask)
	if ctx.payloadEnd-ctx.payloadOffset <= 0 {
		return ErrEmptyPayload
	}
	return nil
}

func decryptFRMPayload(ctx *decodeContext) error {
	s := ctx.decoder.session
	if err := ctx.decoder.cipher.Apply(s.AppSKey, s.DevAddr, ctx.fCnt, ctx.decoder.direction, ctx.b[ctx.payloadOffset:ctx.payloadEnd]); err != nil {
		return errors.Wrap(err, "decrypt payload error")
	}
	return nil
}
