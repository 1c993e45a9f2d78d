package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_mqtt_uplink_count",
		Help: "The number of uplink frames published by the node.",
	})

	dnc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_mqtt_downlink_count",
		Help: "The number of downlink frames forwarded to the node.",
	})

	dnec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_mqtt_downlink_error_count",
		Help: "The number of received downlink messages which were dropped (invalid json, other device address or empty phyPayload).",
	})

	connc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_mqtt_connect_count",
		Help: "The number of times the node connected to the MQTT broker.",
	})

	disc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transport_mqtt_disconnect_count",
		Help: "The number of times the node lost its connection to the MQTT broker.",
	})
)

func uplinkCounter() prometheus.Counter {
	return upc
}

func downlinkCounter() prometheus.Counter {
	return dnc
}

func downlinkErrorCounter() prometheus.Counter {
	return dnec
}

func connectCounter() prometheus.Counter {
	return connc
}

func disconnectCounter() prometheus.Counter {
	return disc
}
