package frame

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/session"
	"github.com/brocaar/lorawan"
)

var (
	testDevAddr = lorawan.DevAddr{0x26, 0x01, 0x17, 0x21}
	testNwkSKey = lorawan.AES128Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	testAppSKey = lorawan.AES128Key{0x3c, 0x4f, 0xcf, 0x09, 0x88, 0x15, 0xf7, 0xab, 0xa6, 0xd2, 0xae, 0x28, 0x16, 0x15, 0x7e, 0x2b}
)

func testSession(fCnt uint16) *session.Session {
	return session.New(testDevAddr, testNwkSKey, testAppSKey, fCnt)
}

// xorCipher is a fake cipher, xor-ing every byte with a keystream derived
// from the key, counter, direction and position.
func xorCipher(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir crypto.Direction, data []byte) error {
	for i := range data {
		data[i] ^= key[i%len(key)] ^ byte(fCnt) ^ byte(fCnt>>8) ^ (byte(dir) * 0x55) ^ byte(i+1)
	}
	return nil
}

// crcMIC is a fake MIC, detecting every single bit error. The counter is
// covered through the FCnt field of the data.
func crcMIC(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir crypto.Direction, data []byte) (lorawan.MIC, error) {
	var mic lorawan.MIC

	b := make([]byte, 0, len(key)+len(devAddr)+1+len(data))
	b = append(b, key[:]...)
	b = append(b, devAddr[:]...)
	b = append(b, byte(dir))
	b = append(b, data...)

	binary.BigEndian.PutUint32(mic[:], crc32.ChecksumIEEE(b))
	return mic, nil
}

type cipherCall struct {
	key  lorawan.AES128Key
	fCnt uint16
	dir  crypto.Direction
	data []byte
}

type micCall struct {
	key  lorawan.AES128Key
	fCnt uint16
	dir  crypto.Direction
	data []byte
}

type recorder struct {
	cipherCalls []cipherCall
	micCalls    []micCall
}

func (r *recorder) Apply(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir crypto.Direction, data []byte) error {
	r.cipherCalls = append(r.cipherCalls, cipherCall{key: key, fCnt: fCnt, dir: dir, data: append([]byte{}, data...)})
	return xorCipher(key, devAddr, fCnt, dir, data)
}

func (r *recorder) Compute(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir crypto.Direction, data []byte) (lorawan.MIC, error) {
	r.micCalls = append(r.micCalls, micCall{key: key, fCnt: fCnt, dir: dir, data: append([]byte{}, data...)})
	return crcMIC(key, devAddr, fCnt, dir, data)
}

var errTest = errors.New("test error")

func failingCipher(key lorawan.AES128Key, devAddr lorawan.DevAddr, fCnt uint16, dir crypto.Direction, data []byte) error {
	return errTest
}

// buildDownlink builds a downlink frame with the fake primitives.
func buildDownlink(fCnt uint16, fOpts []byte, payload []byte) []byte {
	b := []byte{MHDRUnconfirmedDataDown, testDevAddr[3], testDevAddr[2], testDevAddr[1], testDevAddr[0], byte(len(fOpts)), byte(fCnt), byte(fCnt >> 8)}
	b = append(b, fOpts...)
	b = append(b, 0x0a) // FPort

	pl := append([]byte{}, payload...)
	xorCipher(testAppSKey, testDevAddr, fCnt, crypto.Downlink, pl)
	b = append(b, pl...)

	mic, _ := crcMIC(testNwkSKey, testDevAddr, fCnt, crypto.Downlink, b)
	return append(b, mic[:]...)
}
