// Package crypto defines the payload cipher and MIC primitives used by the
// frame codec, together with implementations backed by the LoRaWAN 1.0
// AES-128 keystream and AES-CMAC algorithms.
package crypto

import (
	"encoding/binary"

	"github.com/jacobsa/crypto/cmac"
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
)

// Direction defines the frame direction.
type Direction uint8

// Available directions.
const (
	Uplink   Direction = 0
	Downlink Direction = 1
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Downlink {
		return "downlink"
	}
	return "uplink"
}

// Cipher encrypts or decrypts the given data in-place. Applying it twice with
// the same key, devAddr, fCnt and direction returns the original data.
type Cipher interface {
	Apply(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) error
}

// MIC computes the message integrity code over the given data.
type MIC interface {
	Compute(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) (lorawan.MIC, error)
}

// CipherFunc is an adapter to use ordinary functions as Cipher.
type CipherFunc func(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) error

// Apply calls f.
func (f CipherFunc) Apply(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) error {
	return f(key, devAddr, fCnt, dir, data)
}

// MICFunc is an adapter to use ordinary functions as MIC.
type MICFunc func(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) (lorawan.MIC, error)

// Compute calls f.
func (f MICFunc) Compute(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) (lorawan.MIC, error) {
	return f(key, devAddr, fCnt, dir, data)
}

// LoRaWANCipher implements the FRMPayload encryption scheme.
type LoRaWANCipher struct{}

// NewLoRaWANCipher returns a new LoRaWANCipher.
func NewLoRaWANCipher() *LoRaWANCipher {
	return &LoRaWANCipher{}
}

// Apply implements Cipher.
func (c *LoRaWANCipher) Apply(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	// lorawan.EncryptFRMPayload pads its input up to the block size, which
	// would overwrite whatever follows data in the backing array.
	b := make([]byte, len(data))
	copy(b, data)

	out, err := lorawan.EncryptFRMPayload(key, dir == Uplink, devAddr, uint32(fCnt), b)
	if err != nil {
		return errors.Wrap(err, "encrypt frmpayload error")
	}
	if len(out) != len(data) {
		return errors.Errorf("expected %d bytes, got %d", len(data), len(out))
	}
	copy(data, out)

	return nil
}

// LoRaWANMIC implements the LoRaWAN 1.0 data-frame MIC.
type LoRaWANMIC struct{}

// NewLoRaWANMIC returns a new LoRaWANMIC.
func NewLoRaWANMIC() *LoRaWANMIC {
	return &LoRaWANMIC{}
}

// Compute implements MIC.
func (m *LoRaWANMIC) Compute(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir Direction, data []byte) (lorawan.MIC, error) {
	var mic lorawan.MIC

	if len(data) > 255 {
		return mic, errors.New("data must not exceed 255 bytes")
	}

	b0 := make([]byte, 16)
	b0[0] = 0x49
	b0[5] = byte(dir)
	b, err := devAddr.MarshalBinary()
	if err != nil {
		return mic, errors.Wrap(err, "marshal devaddr error")
	}
	copy(b0[6:10], b)
	binary.LittleEndian.PutUint32(b0[10:14], uint32(fCnt))
	b0[15] = byte(len(data))

	hash, err := cmac.New(key[:])
	if err != nil {
		return mic, errors.Wrap(err, "new cmac error")
	}
	if _, err = hash.Write(b0); err != nil {
		return mic, errors.Wrap(err, "write b0 error")
	}
	if _, err = hash.Write(data); err != nil {
		return mic, errors.Wrap(err, "write data error")
	}

	hb := hash.Sum([]byte{})
	if len(hb) < len(mic) {
		return mic, errors.New("the hash returned less than 4 bytes")
	}
	copy(mic[:], hb[0:len(mic)])

	return mic, nil
}
