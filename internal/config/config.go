package config

import (
	"time"

	"github.com/brocaar/lorawan"
)

// Version defines the ChirpStack Node version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Node struct {
		DevAddr lorawan.DevAddr   `mapstructure:"-"`
		NwkSKey lorawan.AES128Key `mapstructure:"-"`
		AppSKey lorawan.AES128Key `mapstructure:"-"`

		DevAddrString  string        `mapstructure:"dev_addr"`
		NwkSKeyString  string        `mapstructure:"nwk_s_key"`
		AppSKeyString  string        `mapstructure:"app_s_key"`
		FCntUp         uint16        `mapstructure:"f_cnt_up"`
		MaxFrameSize   int           `mapstructure:"max_frame_size"`
		UplinkInterval time.Duration `mapstructure:"uplink_interval"`
		Payload        string        `mapstructure:"payload"`
	} `mapstructure:"node"`

	Redis struct {
		URL       string   `mapstructure:"url"` // deprecated
		Servers   []string `mapstructure:"servers"`
		Password  string   `mapstructure:"password"`
		Database  int      `mapstructure:"database"`
		KeyPrefix string   `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`

	Backend struct {
		MQTT struct {
			Server                string `mapstructure:"server"`
			Username              string `mapstructure:"username"`
			Password              string `mapstructure:"password"`
			QOS                   uint8  `mapstructure:"qos"`
			CleanSession          bool   `mapstructure:"clean_session"`
			ClientID              string `mapstructure:"client_id"`
			CACert                string `mapstructure:"ca_cert"`
			TLSCert               string `mapstructure:"tls_cert"`
			TLSKey                string `mapstructure:"tls_key"`
			UplinkTopicTemplate   string `mapstructure:"uplink_topic_template"`
			DownlinkTopicTemplate string `mapstructure:"downlink_topic_template"`
		} `mapstructure:"mqtt"`
	} `mapstructure:"backend"`

	Metrics struct {
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"metrics"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config

// Get returns the configuration.
func Get() *Config {
	return &C
}

// Set sets the configuration.
func Set(c Config) {
	C = c
}
