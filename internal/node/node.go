// Package node implements an ABP end-device. It periodically sends the
// configured application payload as uplink frame and handles the downlink
// frames received from the transport backend.
package node

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/backend/transport"
	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/frame"
	"github.com/brocaar/chirpstack-node/internal/framelog"
	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/chirpstack-node/internal/session"
	"github.com/brocaar/chirpstack-node/internal/storage"
	"github.com/brocaar/lorawan"
)

const downlinkChanSize = 100

// Downlink contains a validated and decrypted downlink.
type Downlink struct {
	FCnt    uint16
	FPort   uint8
	Payload []byte
}

// Node represents an ABP end-device.
type Node struct {
	wg     sync.WaitGroup
	sendMu sync.Mutex
	cancel context.CancelFunc

	session  *session.Session
	encoder  *frame.Encoder
	decoder  *frame.Decoder
	backend  transport.Transport
	payload  []byte
	interval time.Duration

	downlinkChan chan Downlink
}

// New creates a new Node using the given transport backend and crypto
// primitives.
func New(conf config.Config, backend transport.Transport, c crypto.Cipher, m crypto.MIC) *Node {
	s := session.New(conf.Node.DevAddr, conf.Node.NwkSKey, conf.Node.AppSKey, conf.Node.FCntUp)

	var encOpts []frame.EncoderOption
	if conf.Node.MaxFrameSize != 0 {
		encOpts = append(encOpts, frame.WithMaxFrameSize(conf.Node.MaxFrameSize))
	}

	return &Node{
		session:      s,
		encoder:      frame.NewEncoder(s, c, m, encOpts...),
		decoder:      frame.NewDecoder(s, c, m),
		backend:      backend,
		payload:      []byte(conf.Node.Payload),
		interval:     conf.Node.UplinkInterval,
		downlinkChan: make(chan Downlink, downlinkChanSize),
	}
}

// Session returns the session of the node.
func (n *Node) Session() *session.Session {
	return n.session
}

// DownlinkChan returns the channel receiving the validated downlinks.
func (n *Node) DownlinkChan() chan Downlink {
	return n.downlinkChan
}

// Start restores the uplink frame-counter and starts the uplink and
// downlink loops.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	if err := n.restoreFCntUp(ctx); err != nil {
		cancel()
		return errors.Wrap(err, "restore uplink frame-counter error")
	}

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.uplinkLoop(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.downlinkLoop()
	}()

	return nil
}

// Stop stops the uplink loop, closes the transport backend and waits for
// the pending downlinks to be handled.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}

	if err := n.backend.Close(); err != nil {
		return errors.Wrap(err, "close transport backend error")
	}

	log.Info("node: waiting for pending actions to complete")
	n.wg.Wait()
	return nil
}

// SendUplink encodes the given payload, persists the next uplink
// frame-counter and sends the frame using the transport backend.
func (n *Node) SendUplink(ctx context.Context, payload []byte) (frame.Frame, error) {
	n.sendMu.Lock()
	defer n.sendMu.Unlock()

	f, err := n.encoder.Encode(ctx, payload)
	if err != nil {
		return f, errors.Wrap(err, "encode frame error")
	}

	// the counter must be persisted before the frame leaves the node, so that
	// a restart never re-uses it
	if err := storage.SaveFCntUp(ctx, n.session.DevAddr, n.session.FCntUp()); err != nil && err != storage.ErrNotEnabled {
		return f, errors.Wrap(err, "save uplink frame-counter error")
	}

	if err := framelog.LogUplinkFrame(ctx, n.session.DevAddr, f.FCnt, f.Bytes); err != nil {
		log.WithError(err).Error("node: log uplink frame error")
	}

	if err := n.backend.SendUplinkFrame(ctx, transport.UplinkFrame{
		DevAddr:    n.session.DevAddr,
		FCnt:       f.FCnt,
		PHYPayload: f.Bytes,
	}); err != nil {
		return f, errors.Wrap(err, "send uplink frame error")
	}

	n.saveMetrics(ctx, map[string]float64{
		"uplink_count": 1,
		"uplink_bytes": float64(len(f.Bytes)),
	})

	log.WithFields(log.Fields{
		"dev_addr": n.session.DevAddr,
		"f_cnt":    f.FCnt,
		"ctx_id":   logging.ContextID(ctx),
	}).Info("node: uplink sent")

	return f, nil
}

// HandleDownlink validates and decrypts the given downlink frame.
// The PHYPayload of the given frame is decrypted in place.
func (n *Node) HandleDownlink(ctx context.Context, df transport.DownlinkFrame) (Downlink, error) {
	b := df.PHYPayload
	received := make([]byte, len(b))
	copy(received, b)

	offset, err := n.decoder.Decode(ctx, b)
	if logErr := framelog.LogDownlinkFrame(ctx, n.session.DevAddr, received, err); logErr != nil {
		log.WithError(logErr).Error("node: log downlink frame error")
	}
	if err != nil {
		n.saveMetrics(ctx, map[string]float64{"downlink_error_count": 1})
		return Downlink{}, errors.Wrap(err, "decode frame error")
	}

	dl := Downlink{
		FCnt:    uint16(b[6]) | uint16(b[7])<<8,
		FPort:   b[offset-1],
		Payload: frame.Payload(b, offset),
	}

	n.saveMetrics(ctx, map[string]float64{
		"downlink_count": 1,
		"downlink_bytes": float64(len(b)),
	})

	log.WithFields(log.Fields{
		"dev_addr":    n.session.DevAddr,
		"f_cnt":       dl.FCnt,
		"f_port":      dl.FPort,
		"frm_payload": hex.EncodeToString(dl.Payload),
		"ctx_id":      logging.ContextID(ctx),
	}).Info("node: downlink received")

	return dl, nil
}

func (n *Node) uplinkLoop(ctx context.Context) {
	if n.interval == 0 {
		log.Info("node: uplink interval is not set, periodic uplinks are disabled")
		return
	}

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uctx, err := logging.NewContextWithID(ctx)
			if err != nil {
				log.WithError(err).Error("node: create context error")
				continue
			}

			if _, err := n.SendUplink(uctx, n.payload); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"dev_addr": n.session.DevAddr,
					"ctx_id":   logging.ContextID(uctx),
				}).Error("node: send uplink error")
			}
		}
	}
}

func (n *Node) downlinkLoop() {
	for df := range n.backend.DownlinkFrameChan() {
		n.wg.Add(1)
		go func(df transport.DownlinkFrame) {
			defer n.wg.Done()

			ctx, err := logging.NewContextWithID(context.Background())
			if err != nil {
				log.WithError(err).Error("node: create context error")
				return
			}

			dl, err := n.HandleDownlink(ctx, df)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{
					"dev_addr": n.session.DevAddr,
					"ctx_id":   logging.ContextID(ctx),
				}).Error("node: handle downlink error")
				return
			}

			select {
			case n.downlinkChan <- dl:
			default:
				log.WithField("ctx_id", logging.ContextID(ctx)).Warning("node: downlink channel is full, dropping downlink")
			}
		}(df)
	}
}

func (n *Node) restoreFCntUp(ctx context.Context) error {
	fCnt, err := storage.GetFCntUp(ctx, n.session.DevAddr)
	if err != nil {
		if err == storage.ErrNotEnabled || err == storage.ErrDoesNotExist {
			log.WithFields(log.Fields{
				"dev_addr": n.session.DevAddr,
				"f_cnt_up": n.session.FCntUp(),
			}).Info("node: no stored uplink frame-counter, using configured value")
			return nil
		}
		return err
	}

	n.session.SetFCntUp(fCnt)

	log.WithFields(log.Fields{
		"dev_addr": n.session.DevAddr,
		"f_cnt_up": fCnt,
	}).Info("node: uplink frame-counter restored")

	return nil
}

// MetricsName returns the name under which the metrics of the given device
// are stored.
func MetricsName(devAddr lorawan.DevAddr) string {
	return "node:" + devAddr.String()
}

func (n *Node) saveMetrics(ctx context.Context, metrics map[string]float64) {
	err := storage.SaveMetrics(ctx, MetricsName(n.session.DevAddr), storage.MetricsRecord{
		Time:    time.Now(),
		Metrics: metrics,
	})
	if err != nil && err != storage.ErrNotEnabled {
		log.WithError(err).Error("node: save metrics error")
	}
}
