package frame

import (
	"context"
	"fmt"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/lorawan"
)

func TestEncoder(t *testing.T) {
	t.Run("frame layout", func(t *testing.T) {
		assert := require.New(t)
		r := &recorder{}
		s := testSession(0x0102)
		e := NewEncoder(s, r, r)

		f, err := e.Encode(context.Background(), []byte{1, 2, 3})
		assert.NoError(err)
		assert.EqualValues(0x0102, f.FCnt)
		assert.Len(f.Bytes, HeaderSize+3+MICSize)

		// cipher
		assert.Len(r.cipherCalls, 1)
		assert.Equal(cipherCall{key: testAppSKey, fCnt: 0x0102, dir: crypto.Uplink, data: []byte{1, 2, 3}}, r.cipherCalls[0])

		ct := []byte{1, 2, 3}
		assert.NoError(xorCipher(testAppSKey, testDevAddr, 0x0102, crypto.Uplink, ct))

		expected := []byte{0x40, 0x21, 0x17, 0x01, 0x26, 0x00, 0x02, 0x01, 0x01}
		expected = append(expected, ct...)
		assert.Equal(expected, f.Bytes[:len(f.Bytes)-MICSize])

		// mic
		assert.Len(r.micCalls, 1)
		assert.Equal(micCall{key: testNwkSKey, fCnt: 0x0102, dir: crypto.Uplink, data: expected}, r.micCalls[0])
		mic, err := crcMIC(testNwkSKey, testDevAddr, 0x0102, crypto.Uplink, expected)
		assert.NoError(err)
		assert.Equal(mic[:], f.Bytes[len(f.Bytes)-MICSize:])
	})

	t.Run("context id is logged", func(t *testing.T) {
		assert := require.New(t)
		hook := test.NewGlobal()
		defer hook.Reset()
		level := log.GetLevel()
		log.SetLevel(log.DebugLevel)
		defer log.SetLevel(level)

		ctx, err := logging.NewContextWithID(context.Background())
		assert.NoError(err)

		e := NewEncoder(testSession(0), crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC))
		_, err = e.Encode(ctx, []byte{1})
		assert.NoError(err)
		assert.Equal(logging.ContextID(ctx), hook.LastEntry().Data["ctx_id"])

		_, err = e.Encode(context.Background(), []byte{1})
		assert.NoError(err)
		assert.Equal(uuid.Nil, hook.LastEntry().Data["ctx_id"])
	})

	t.Run("payload is not modified", func(t *testing.T) {
		assert := require.New(t)
		e := NewEncoder(testSession(0), crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC))

		pl := []byte{1, 2, 3, 4}
		_, err := e.Encode(context.Background(), pl)
		assert.NoError(err)
		assert.Equal([]byte{1, 2, 3, 4}, pl)
	})

	t.Run("counter increments by one for every frame", func(t *testing.T) {
		assert := require.New(t)
		s := testSession(10)
		e := NewEncoder(s, crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC))

		for i := 0; i < 25; i++ {
			// the frames are discarded, the counter must still increment
			f, err := e.Encode(context.Background(), []byte{byte(i)})
			assert.NoError(err)
			assert.EqualValues(10+i, f.FCnt)
			assert.EqualValues(10+i, uint16(f.Bytes[6])|uint16(f.Bytes[7])<<8)
		}
		assert.EqualValues(35, s.FCntUp())
	})

	t.Run("counter wraps", func(t *testing.T) {
		assert := require.New(t)
		s := testSession(65535)
		e := NewEncoder(s, crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC))

		f, err := e.Encode(context.Background(), []byte{1})
		assert.NoError(err)
		assert.EqualValues(65535, f.FCnt)
		assert.EqualValues(0, s.FCntUp())
	})

	t.Run("empty payload", func(t *testing.T) {
		assert := require.New(t)
		e := NewEncoder(testSession(0), crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC))

		f, err := e.Encode(context.Background(), nil)
		assert.NoError(err)
		assert.Len(f.Bytes, HeaderSize+MICSize)
	})

	t.Run("max frame size", func(t *testing.T) {
		tests := []struct {
			maxFrameSize int
			payloadSize  int
			err          error
		}{
			{DefaultMaxFrameSize, 67, nil},
			{DefaultMaxFrameSize, 68, ErrFrameTooLarge},
			{20, 7, nil},
			{20, 8, ErrFrameTooLarge},
			{12, 0, ErrFrameTooLarge},
		}

		for _, tst := range tests {
			t.Run(fmt.Sprintf("max %d, payload %d", tst.maxFrameSize, tst.payloadSize), func(t *testing.T) {
				assert := require.New(t)
				s := testSession(5)
				e := NewEncoder(s, crypto.CipherFunc(xorCipher), crypto.MICFunc(crcMIC), WithMaxFrameSize(tst.maxFrameSize))

				f, err := e.Encode(context.Background(), make([]byte, tst.payloadSize))
				if tst.err != nil {
					assert.Equal(tst.err, errors.Cause(err))
					assert.EqualValues(5, s.FCntUp())
					return
				}

				assert.NoError(err)
				assert.Len(f.Bytes, HeaderSize+tst.payloadSize+MICSize)
				assert.EqualValues(6, s.FCntUp())
			})
		}
	})

	t.Run("MaxPayloadSize", func(t *testing.T) {
		assert := require.New(t)
		assert.Equal(67, NewEncoder(testSession(0), nil, nil).MaxPayloadSize())
		assert.Equal(7, NewEncoder(testSession(0), nil, nil, WithMaxFrameSize(20)).MaxPayloadSize())
		assert.Equal(0, MaxPayloadSize(5))
	})

	t.Run("cipher error", func(t *testing.T) {
		assert := require.New(t)
		s := testSession(3)
		e := NewEncoder(s, crypto.CipherFunc(failingCipher), crypto.MICFunc(crcMIC))

		_, err := e.Encode(context.Background(), []byte{1})
		assert.Equal(errTest, errors.Cause(err))
		assert.EqualValues(3, s.FCntUp())
	})

	t.Run("determinism", func(t *testing.T) {
		assert := require.New(t)
		c := crypto.NewLoRaWANCipher()
		m := crypto.NewLoRaWANMIC()

		f1, err := NewEncoder(testSession(42), c, m).Encode(context.Background(), []byte("hello"))
		assert.NoError(err)
		f2, err := NewEncoder(testSession(42), c, m).Encode(context.Background(), []byte("hello"))
		assert.NoError(err)
		assert.Equal(f1, f2)

		f3, err := NewEncoder(testSession(43), c, m).Encode(context.Background(), []byte("hello"))
		assert.NoError(err)
		assert.NotEqual(f1.Bytes, f3.Bytes)
	})

	t.Run("lorawan interop", func(t *testing.T) {
		assert := require.New(t)
		e := NewEncoder(testSession(1234), crypto.NewLoRaWANCipher(), crypto.NewLoRaWANMIC())

		f, err := e.Encode(context.Background(), []byte("temp=21.5"))
		assert.NoError(err)

		phy, err := Inspect(f.Bytes)
		assert.NoError(err)
		assert.Equal(lorawan.UnconfirmedDataUp, phy.MHDR.MType)

		ok, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, testNwkSKey, testNwkSKey)
		assert.NoError(err)
		assert.True(ok)

		macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
		assert.True(ok)
		assert.Equal(testDevAddr, macPL.FHDR.DevAddr)
		assert.EqualValues(1234, macPL.FHDR.FCnt)
		assert.NotNil(macPL.FPort)
		assert.EqualValues(1, *macPL.FPort)

		assert.NoError(phy.DecryptFRMPayload(testAppSKey))
		assert.Len(macPL.FRMPayload, 1)
		pl, ok := macPL.FRMPayload[0].(*lorawan.DataPayload)
		assert.True(ok)
		assert.Equal([]byte("temp=21.5"), pl.Bytes)
	})
}
