// Package mqtt implements a MQTT transport backend.
package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"sync"
	"text/template"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/backend/transport"
	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/lorawan"
)

// Backend implements a MQTT pub-sub transport backend.
type Backend struct {
	wg sync.WaitGroup

	devAddr           lorawan.DevAddr
	downlinkFrameChan chan transport.DownlinkFrame
	conn              paho.Client

	uplinkTopic   string
	downlinkTopic string

	qos          uint8
	retryTimeout time.Duration
}

// NewBackend creates a new Backend for the given device address.
func NewBackend(devAddr lorawan.DevAddr, conf config.Config) (*Backend, error) {
	c := conf.Backend.MQTT

	b := Backend{
		devAddr:           devAddr,
		downlinkFrameChan: make(chan transport.DownlinkFrame),
		qos:               c.QOS,
		retryTimeout:      2 * time.Second,
	}

	var err error
	b.uplinkTopic, err = executeTopicTemplate("uplink", c.UplinkTopicTemplate, devAddr)
	if err != nil {
		return nil, err
	}

	b.downlinkTopic, err = executeTopicTemplate("downlink", c.DownlinkTopicTemplate, devAddr)
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.Server)
	opts.SetUsername(c.Username)
	opts.SetPassword(c.Password)
	opts.SetCleanSession(c.CleanSession)
	opts.SetClientID(c.ClientID)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)

	tlsconfig, err := newTLSConfig(c.CACert, c.TLSCert, c.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "transport/mqtt: load mqtt certificate files error")
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}

	log.WithField("server", c.Server).Info("transport/mqtt: connecting to mqtt broker")
	b.conn = paho.NewClient(opts)
	for {
		if token := b.conn.Connect(); token.Wait() && token.Error() != nil {
			log.Errorf("transport/mqtt: connecting to mqtt broker failed, will retry in %s: %s", b.retryTimeout, token.Error())
			time.Sleep(b.retryTimeout)
		} else {
			break
		}
	}

	return &b, nil
}

// Close closes the backend.
// Downlinks still being handled are processed before the downlink channel
// is closed.
func (b *Backend) Close() error {
	log.Info("transport/mqtt: closing backend")

	log.WithField("topic", b.downlinkTopic).Info("transport/mqtt: unsubscribing from downlink topic")
	if token := b.conn.Unsubscribe(b.downlinkTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "transport/mqtt: unsubscribe from %s error", b.downlinkTopic)
	}

	log.Info("transport/mqtt: handling last messages")
	b.wg.Wait()
	close(b.downlinkFrameChan)
	b.conn.Disconnect(250)
	return nil
}

// DownlinkFrameChan returns the downlink-frame channel.
func (b *Backend) DownlinkFrameChan() chan transport.DownlinkFrame {
	return b.downlinkFrameChan
}

// SendUplinkFrame publishes the given uplink frame.
func (b *Backend) SendUplinkFrame(ctx context.Context, pl transport.UplinkFrame) error {
	bb, err := json.Marshal(pl)
	if err != nil {
		return errors.Wrap(err, "marshal json error")
	}

	log.WithFields(log.Fields{
		"topic":    b.uplinkTopic,
		"qos":      b.qos,
		"dev_addr": pl.DevAddr,
		"f_cnt":    pl.FCnt,
		"ctx_id":   logging.ContextID(ctx),
	}).Info("transport/mqtt: publishing uplink frame")

	uplinkCounter().Inc()

	if token := b.conn.Publish(b.uplinkTopic, b.qos, false, bb); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "transport/mqtt: publish uplink frame error")
	}

	return nil
}

func (b *Backend) downlinkFrameHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	log.WithField("topic", msg.Topic()).Info("transport/mqtt: downlink frame received")

	var downlinkFrame transport.DownlinkFrame
	if err := json.Unmarshal(msg.Payload(), &downlinkFrame); err != nil {
		log.WithFields(log.Fields{
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
		}).WithError(err).Error("transport/mqtt: unmarshal downlink frame error")
		downlinkErrorCounter().Inc()
		return
	}

	if downlinkFrame.DevAddr != b.devAddr {
		log.WithFields(log.Fields{
			"dev_addr":          downlinkFrame.DevAddr,
			"expected_dev_addr": b.devAddr,
		}).Warning("transport/mqtt: ignoring downlink frame for other device address")
		downlinkErrorCounter().Inc()
		return
	}

	if len(downlinkFrame.PHYPayload) == 0 {
		log.WithFields(log.Fields{
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
		}).Error("transport/mqtt: phyPayload must not be empty")
		downlinkErrorCounter().Inc()
		return
	}

	downlinkCounter().Inc()
	b.downlinkFrameChan <- downlinkFrame
}

func (b *Backend) onConnected(c paho.Client) {
	connectCounter().Inc()
	log.Info("transport/mqtt: connected to mqtt server")

	for {
		log.WithFields(log.Fields{
			"topic": b.downlinkTopic,
			"qos":   b.qos,
		}).Info("transport/mqtt: subscribing to downlink topic")
		if token := c.Subscribe(b.downlinkTopic, b.qos, b.downlinkFrameHandler); token.Wait() && token.Error() != nil {
			log.WithFields(log.Fields{
				"topic": b.downlinkTopic,
				"qos":   b.qos,
			}).Errorf("transport/mqtt: subscribe error: %s", token.Error())
			time.Sleep(time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnectionLost(c paho.Client, reason error) {
	disconnectCounter().Inc()
	log.Errorf("transport/mqtt: mqtt connection error: %s", reason)
}

func executeTopicTemplate(name, tmpl string, devAddr lorawan.DevAddr) (string, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return "", errors.Wrapf(err, "transport/mqtt: parse %s template error", name)
	}

	topic := bytes.NewBuffer(nil)
	if err := t.Execute(topic, struct{ DevAddr lorawan.DevAddr }{devAddr}); err != nil {
		return "", errors.Wrapf(err, "transport/mqtt: execute %s template error", name)
	}

	return topic.String(), nil
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	// Here are three valid options:
	//   - Only CA
	//   - TLS cert + key
	//   - CA, TLS cert + key

	if cafile == "" && certFile == "" && certKeyFile == "" {
		log.Info("transport/mqtt: TLS config is empty")
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	// Import trusted certificates from CAfile.pem.
	if cafile != "" {
		cacert, err := ioutil.ReadFile(cafile)
		if err != nil {
			log.Errorf("transport/mqtt: couldn't load cafile: %s", err)
			return nil, err
		}
		certpool := x509.NewCertPool()
		certpool.AppendCertsFromPEM(cacert)

		tlsConfig.RootCAs = certpool // RootCAs = certs used to verify server cert.
	}

	// Import certificate and the key
	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			log.Errorf("transport/mqtt: couldn't load MQTT TLS key pair: %s", err)
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
