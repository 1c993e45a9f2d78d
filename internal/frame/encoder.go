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

var encodeTasks = []func(*encodeContext) error{
	validateFrameSize,
	encryptFRMPayload,
	setHeader,
	setFRMPayload,
	setMIC,
}

type encodeContext struct {
	ctx context.Context

	encoder *Encoder
	fCnt    uint16
	payload []byte
	b       []byte
}

// EncoderOption configures the Encoder.
type EncoderOption func(*Encoder)

// WithMaxFrameSize sets the max size of an encoded frame.
func WithMaxFrameSize(n int) EncoderOption {
	return func(e *Encoder) {
		e.maxFrameSize = n
	}
}

// Encoder builds unconfirmed uplink data frames.
type Encoder struct {
	session      *session.Session
	cipher       crypto.Cipher
	mic          crypto.MIC
	maxFrameSize int
}

// NewEncoder creates a new Encoder.
func NewEncoder(s *session.Session, c crypto.Cipher, m crypto.MIC, opts ...EncoderOption) *Encoder {
	e := Encoder{
		session:      s,
		cipher:       c,
		mic:          m,
		maxFrameSize: DefaultMaxFrameSize,
	}

	for _, o := range opts {
		o(&e)
	}

	return &e
}

// MaxPayloadSize returns the max payload size accepted by Encode.
func (e *Encoder) MaxPayloadSize() int {
	return MaxPayloadSize(e.maxFrameSize)
}

// Encode encrypts the given payload and returns the uplink frame. The
// session frame-counter is incremented by every successful call, also when
// the caller never sends the returned frame. The given payload is not
// modified.
//
// ctx must be non-nil, pass context.Background() when there is no request
// context.
func (e *Encoder) Encode(ctx context.Context, payload []byte) (Frame, error) {
	var f Frame

	err := e.session.UseFCntUp(func(fCnt uint16) error {
		ectx := encodeContext{
			ctx:     ctx,
			encoder: e,
			fCnt:    fCnt,
			payload: make([]byte, len(payload)),
		}
		copy(ectx.payload, payload)

		for _, t := range encodeTasks {
			if err := t(&ectx); err != nil {
				return err
			}
		}

		f = Frame{
			FCnt:  fCnt,
			Bytes: ectx.b,
		}
		return nil
	})
	if err != nil {
		encodeErrorCounter().Inc()
		return f, err
	}

	encodeCounter().Inc()
	log.WithFields(log.Fields{
		"dev_addr": e.session.DevAddr,
		"f_cnt":    f.FCnt,
		"size":     len(f.Bytes),
		"ctx_id":   logging.ContextID(ctx),
	}).Debug("frame: uplink frame encoded")

	return f, nil
}

func validateFrameSize(ctx *encodeContext) error {
	if size := HeaderSize + len(ctx.payload) + MICSize; size > ctx.encoder.maxFrameSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d > %d bytes", size, ctx.encoder.maxFrameSize)
	}
	return nil
}

func encryptFRMPayload(ctx *encodeContext) error {
	s := ctx.encoder.session
	if err := ctx.encoder.cipher.Apply(s.AppSKey, s.DevAddr, ctx.fCnt, crypto.Uplink, ctx.payload); err != nil {
		return errors.Wrap(err, "encrypt payload error")
	}
	return nil
}

func setHeader(ctx *encodeContext) error {
	ctx.b = make([]byte, HeaderSize, HeaderSize+len(ctx.payload)+MICSize)
	ctx.b[offsetMHDR] = MHDRUnconfirmedDataUp

	devAddr, err := ctx.encoder.session.DevAddr.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "marshal devaddr error")
	}
	copy(ctx.b[offsetDevAddr:offsetFCtrl], devAddr)

	// no ADR, no ACK and no FOpts
	ctx.b[offsetFCtrl] = 0x00
	binary.LittleEndian.PutUint16(ctx.b[offsetFCnt:offsetFPort], ctx.fCnt)
	ctx.b[offsetFPort] = FPortApplication

	return nil
}

func setFRMPayload(ctx *encodeContext) error {
	ctx.b = append(ctx.b, ctx.payload...)
	return nil
}

func setMIC(ctx *encodeContext) error {
	s := ctx.encoder.session
	mic, err := ctx.encoder.mic.Compute(s.NwkSKey, s.DevAddr, ctx.fCnt, crypto.Uplink, ctx.b)
	if err != nil {
		return errors.Wrap(err, "calculate mic error")
	}
	ctx.b = append(ctx.b, mic[:]...)
	return nil
}
