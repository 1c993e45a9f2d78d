package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}

# Log to syslog.
#
# When set to true, log messages are being written to syslog.
log_to_syslog={{ .General.LogToSyslog }}


# Node (ABP) settings.
[node]
# Device address (HEX encoded, MSB first).
dev_addr="{{ .Node.DevAddrString }}"

# Network session key (HEX encoded).
#
# This key is used for computing and validating the MIC.
nwk_s_key="{{ .Node.NwkSKeyString }}"

# Application session key (HEX encoded).
#
# This key is used for encrypting and decrypting the FRMPayload.
app_s_key="{{ .Node.AppSKeyString }}"

# Initial uplink frame-counter.
#
# When Redis is configured, the stored frame-counter takes precedence
# over this value.
f_cnt_up={{ .Node.FCntUp }}

# Max frame size (bytes).
#
# Uplinks of which the frame would exceed this size are rejected. The max
# application payload size equals this value minus 13.
max_frame_size={{ .Node.MaxFrameSize }}

# Uplink interval.
#
# The interval in which the payload below is sent. Set this to 0 to disable
# the periodic uplinks.
uplink_interval="{{ .Node.UplinkInterval }}"

# Uplink payload.
payload="{{ .Node.Payload }}"


# Redis settings
#
# Redis is used for persisting the uplink frame-counter, the frame-log
# and the aggregated metrics. Leave the servers empty to disable.
[redis]
# Server address or addresses.
#
# Set multiple addresses when connecting to a cluster.
servers=[{{ range $index, $element := .Redis.Servers }}{{ if $index }}, {{ end }}"{{ $element }}"{{ end }}]

# Password.
#
# Set the password when connecting to Redis requires password authentication.
password="{{ .Redis.Password }}"

# Database index.
#
# By default, this can be a number between 0-15.
database={{ .Redis.Database }}

# Key prefix.
#
# A key prefix can be used to avoid key collisions when multiple nodes share
# the same Redis database.
key_prefix="{{ .Redis.KeyPrefix }}"


# Transport backend.
[backend.mqtt]
# MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
server="{{ .Backend.MQTT.Server }}"

# Connect with the given username (optional)
username="{{ .Backend.MQTT.Username }}"

# Connect with the given password (optional)
password="{{ .Backend.MQTT.Password }}"

# Quality of service level
#
# 0: at most once
# 1: at least once
# 2: exactly once
#
# Note: an increase of this value will decrease the performance.
# For more information: https://www.hivemq.com/blog/mqtt-essentials-part-6-mqtt-quality-of-service-levels
qos={{ .Backend.MQTT.QOS }}

# Clean session
#
# Set the "clean session" flag in the connect message when this client
# connects to an MQTT broker. By setting this flag you are indicating
# that no messages saved by the broker for this client should be delivered.
clean_session={{ .Backend.MQTT.CleanSession }}

# Client ID
#
# Set the client id to be used by this client when connecting to the MQTT
# broker. A client id must be no longer than 23 characters. When left blank,
# a random id will be generated. This requires clean_session=true.
client_id="{{ .Backend.MQTT.ClientID }}"

# CA certificate file (optional)
#
# Use this when setting up a secure connection (when server uses ssl://...)
# but the certificate used by the server is not trusted by any CA certificate
# on the server (e.g. when self generated).
ca_cert="{{ .Backend.MQTT.CACert }}"

# TLS certificate file (optional)
tls_cert="{{ .Backend.MQTT.TLSCert }}"

# TLS key file (optional)
tls_key="{{ .Backend.MQTT.TLSKey }}"

# Uplink topic template.
#
# The encoded uplink frames are published to this topic.
uplink_topic_template="{{ .Backend.MQTT.UplinkTopicTemplate }}"

# Downlink topic template.
#
# The node subscribes to this topic for receiving downlink frames.
downlink_topic_template="{{ .Backend.MQTT.DownlinkTopicTemplate }}"


# Metrics settings.
[metrics]
# Timezone
#
# The timezone is used for correctly aggregating the metrics (e.g. per hour,
# day or month).
# Example: "Europe/Amsterdam" or "Local" for the system's local time zone.
timezone="{{ .Metrics.Timezone }}"


# Monitoring settings.
[monitoring]
# IP:port to bind the monitoring endpoint to.
#
# When left blank, the monitoring endpoint will be disabled.
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set true, Prometheus metrics will be served at '/metrics'.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Healthcheck endpoint.
#
# When set to true, the healthcheck endpoint will be served at '/health'.
# When requesting, this endpoint will perform the following actions to
# determine the health of this service:
#   * If configured, ping Redis
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the ChirpStack Node configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
