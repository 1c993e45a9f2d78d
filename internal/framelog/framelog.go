// Package framelog logs the frames sent and received by the node. Frames are
// always written to the log (debug level) and, when storage is enabled,
// published to a Redis pub-sub key so that they can be followed from a
// different process.
package framelog

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/chirpstack-node/internal/storage"
	"github.com/brocaar/lorawan"
)

const deviceFrameLogPubSubKeyTempl = "lora:node:%s:pubsub:frame"

// FrameLog contains the details of a sent or received frame.
type FrameLog struct {
	Direction  crypto.Direction
	DevAddr    lorawan.DevAddr
	FCnt       uint16
	PHYPayload []byte

	// Error holds the decode error of a rejected downlink.
	Error string
}

// LogUplinkFrame logs the given (encoded) uplink frame.
func LogUplinkFrame(ctx context.Context, devAddr lorawan.DevAddr, fCnt uint16, phyPayload []byte) error {
	return logFrame(ctx, FrameLog{
		Direction:  crypto.Uplink,
		DevAddr:    devAddr,
		FCnt:       fCnt,
		PHYPayload: phyPayload,
	})
}

// LogDownlinkFrame logs the given downlink frame as it was received, together
// with its decode error (if any).
func LogDownlinkFrame(ctx context.Context, devAddr lorawan.DevAddr, phyPayload []byte, decodeErr error) error {
	fl := FrameLog{
		Direction:  crypto.Downlink,
		DevAddr:    devAddr,
		PHYPayload: phyPayload,
	}
	if len(phyPayload) >= 8 {
		fl.FCnt = uint16(phyPayload[6]) | uint16(phyPayload[7])<<8
	}
	if decodeErr != nil {
		fl.Error = decodeErr.Error()
	}

	return logFrame(ctx, fl)
}

// GetFrameLogForDevice subscribes to the frame logs of the given device and
// sends these to the given channel until the context is cancelled.
func GetFrameLogForDevice(ctx context.Context, devAddr lorawan.DevAddr, frameLogChan chan FrameLog) error {
	if !storage.Enabled() {
		return storage.ErrNotEnabled
	}

	key := storage.GetRedisKey(deviceFrameLogPubSubKeyTempl, devAddr)
	sub := storage.RedisClient().Subscribe(ctx, key)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe error")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var fl FrameLog
			if err := gob.NewDecoder(bytes.NewReader([]byte(msg.Payload))).Decode(&fl); err != nil {
				return errors.Wrap(err, "gob decode frame-log error")
			}
			frameLogChan <- fl
		}
	}
}

// Fields returns the frame split into its header fields, hex encoded.
// Fields which are not present (e.g. because the frame is too short) are
// omitted.
func Fields(fl FrameLog) log.Fields {
	b := fl.PHYPayload
	f := log.Fields{
		"direction": fl.Direction,
		"dev_addr":  fl.DevAddr,
		"f_cnt":     fl.FCnt,
	}

	if len(b) < 12 {
		f["phy_payload"] = hex.EncodeToString(b)
		return f
	}

	fOptsEnd := 8 + int(b[5]&0x0f)
	if fOptsEnd > len(b)-4 {
		fOptsEnd = len(b) - 4
	}

	f["mhdr"] = hex.EncodeToString(b[0:1])
	f["f_ctrl"] = hex.EncodeToString(b[5:6])
	if fOptsEnd > 8 {
		f["f_opts"] = hex.EncodeToString(b[8:fOptsEnd])
	}
	if fOptsEnd < len(b)-4 {
		f["f_port"] = b[fOptsEnd]
		f["frm_payload"] = hex.EncodeToString(b[fOptsEnd+1 : len(b)-4])
	}
	f["mic"] = hex.EncodeToString(b[len(b)-4:])

	return f
}

func logFrame(ctx context.Context, fl FrameLog) error {
	l := log.WithFields(Fields(fl)).WithField("ctx_id", logging.ContextID(ctx))
	if fl.Error != "" {
		l = l.WithField("error", fl.Error)
	}
	l.Debug("framelog: frame logged")

	if !storage.Enabled() {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fl); err != nil {
		return errors.Wrap(err, "gob encode error")
	}

	key := storage.GetRedisKey(deviceFrameLogPubSubKeyTempl, fl.DevAddr)
	if err := storage.RedisClient().Publish(ctx, key, buf.Bytes()).Err(); err != nil {
		return errors.Wrap(err, "publish frame to device channel error")
	}

	return nil
}
