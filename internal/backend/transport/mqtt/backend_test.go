package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-node/internal/backend/transport"
	"github.com/brocaar/chirpstack-node/internal/test"
	"github.com/brocaar/lorawan"
)

type BackendTestSuite struct {
	suite.Suite

	backend    *Backend
	mqttClient paho.Client
	devAddr    lorawan.DevAddr
}

func (ts *BackendTestSuite) SetupSuite() {
	conf := test.GetConfig()
	if conf.Backend.MQTT.Server == "" {
		ts.T().Skip("TEST_MQTT_SERVER is not set")
	}

	assert := require.New(ts.T())
	ts.devAddr = conf.Node.DevAddr

	opts := paho.NewClientOptions().
		AddBroker(conf.Backend.MQTT.Server).
		SetUsername(conf.Backend.MQTT.Username).
		SetPassword(conf.Backend.MQTT.Password)
	ts.mqttClient = paho.NewClient(opts)
	token := ts.mqttClient.Connect()
	token.Wait()
	assert.NoError(token.Error())

	var err error
	ts.backend, err = NewBackend(ts.devAddr, conf)
	assert.NoError(err)

	// give the backend time to subscribe
	time.Sleep(200 * time.Millisecond)
}

func (ts *BackendTestSuite) TearDownSuite() {
	if ts.backend == nil {
		return
	}

	assert := require.New(ts.T())
	assert.NoError(ts.backend.Close())
	ts.mqttClient.Disconnect(0)
}

func (ts *BackendTestSuite) TestSendUplinkFrame() {
	assert := require.New(ts.T())

	uplinkFrameChan := make(chan transport.UplinkFrame, 1)
	token := ts.mqttClient.Subscribe("node/+/up", 0, func(c paho.Client, msg paho.Message) {
		var pl transport.UplinkFrame
		if err := json.Unmarshal(msg.Payload(), &pl); err != nil {
			panic(err)
		}
		uplinkFrameChan <- pl
	})
	token.Wait()
	assert.NoError(token.Error())

	uplinkFrame := transport.UplinkFrame{
		DevAddr:    ts.devAddr,
		FCnt:       10,
		PHYPayload: []byte{0x40, 1, 2, 3, 4},
	}
	assert.NoError(ts.backend.SendUplinkFrame(context.Background(), uplinkFrame))

	assert.Equal(uplinkFrame, <-uplinkFrameChan)
	ts.mqttClient.Unsubscribe("node/+/up").Wait()
}

func (ts *BackendTestSuite) TestDownlinkFrame() {
	assert := require.New(ts.T())

	downlinkFrame := transport.DownlinkFrame{
		DevAddr:    ts.devAddr,
		PHYPayload: []byte{0x60, 1, 2, 3, 4},
	}
	b, err := json.Marshal(downlinkFrame)
	assert.NoError(err)

	token := ts.mqttClient.Publish("node/"+ts.devAddr.String()+"/down", 0, false, b)
	token.Wait()
	assert.NoError(token.Error())

	assert.Equal(downlinkFrame, <-ts.backend.DownlinkFrameChan())
}

func TestBackend(t *testing.T) {
	suite.Run(t, new(BackendTestSuite))
}

type testMessage struct {
	topic   string
	payload []byte
}

func (m testMessage) Duplicate() bool { return false }
func (m testMessage) Qos() byte { return 0 }
func (m testMessage) Retained() bool { return false }
func (m testMessage) Topic() string { return m.topic }
func (m testMessage) MessageID() uint16 { return 0 }
func (m testMessage) Payload() []byte { return m.payload }
func (m testMessage) Ack() {}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		panic(err)
	}
	return m.GetCounter().GetValue()
}

func TestDownlinkFrameHandler(t *testing.T) {
	devAddr := lorawan.DevAddr{0x26, 0x01, 0x17, 0x21}

	marshal := func(df transport.DownlinkFrame) []byte {
		b, err := json.Marshal(df)
		if err != nil {
			panic(err)
		}
		return b
	}

	tests := []struct {
		Name              string
		Payload           []byte
		ExpectedForwarded bool
	}{
		{
			Name:              "valid downlink frame",
			Payload:           marshal(transport.DownlinkFrame{DevAddr: devAddr, PHYPayload: []byte{0x60, 1, 2, 3}}),
			ExpectedForwarded: true,
		},
		{
			Name:    "invalid json",
			Payload: []byte("{"),
		},
		{
			Name:    "other device address",
			Payload: marshal(transport.DownlinkFrame{DevAddr: lorawan.DevAddr{1, 2, 3, 4}, PHYPayload: []byte{0x60, 1, 2, 3}}),
		},
		{
			Name:    "empty phyPayload",
			Payload: marshal(transport.DownlinkFrame{DevAddr: devAddr}),
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			b := Backend{
				devAddr:           devAddr,
				downlinkFrameChan: make(chan transport.DownlinkFrame, 1),
			}
			forwarded := counterValue(downlinkCounter())
			dropped := counterValue(downlinkErrorCounter())

			b.downlinkFrameHandler(nil, testMessage{topic: "node/26011721/down", payload: tst.Payload})

			if tst.ExpectedForwarded {
				assert.Len(b.downlinkFrameChan, 1)
				assert.Equal(forwarded+1, counterValue(downlinkCounter()))
				assert.Equal(dropped, counterValue(downlinkErrorCounter()))
			} else {
				assert.Len(b.downlinkFrameChan, 0)
				assert.Equal(forwarded, counterValue(downlinkCounter()))
				assert.Equal(dropped+1, counterValue(downlinkErrorCounter()))
			}
		})
	}
}

func TestExecuteTopicTemplate(t *testing.T) {
	tests := []struct {
		Name          string
		Template      string
		ExpectedTopic string
		ExpectedError bool
	}{
		{
			Name:          "uplink topic",
			Template:      "node/{{ .DevAddr }}/up",
			ExpectedTopic: "node/26011721/up",
		},
		{
			Name:          "static topic",
			Template:      "node/down",
			ExpectedTopic: "node/down",
		},
		{
			Name:          "invalid template",
			Template:      "node/{{ .DevAddr",
			ExpectedError: true,
		},
		{
			Name:          "unknown field",
			Template:      "node/{{ .DevEUI }}/up",
			ExpectedError: true,
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			topic, err := executeTopicTemplate("test", tst.Template, lorawan.DevAddr{0x26, 0x01, 0x17, 0x21})
			if tst.ExpectedError {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tst.ExpectedTopic, topic)
		})
	}
}

func TestNewTLSConfig(t *testing.T) {
	assert := require.New(t)

	tlsConfig, err := newTLSConfig("", "", "")
	assert.NoError(err)
	assert.Nil(tlsConfig)

	_, err = newTLSConfig("/does/not/exist/ca.pem", "", "")
	assert.Error(err)

	_, err = newTLSConfig("", "/does/not/exist/cert.pem", "/does/not/exist/key.pem")
	assert.Error(err)
}
