package cmd

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"reflect"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brocaar/chirpstack-node/internal/config"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "chirpstack-node",
	Short: "ChirpStack Node",
	Long: `ChirpStack Node is a LoRaWAN ABP end-device, sending its uplinks and receiving its downlinks over MQTT
	> source & copyright information: https://github.com/brocaar/chirpstack-node/`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("node.dev_addr", "00000000")
	viper.SetDefault("node.nwk_s_key", "00000000000000000000000000000000")
	viper.SetDefault("node.app_s_key", "00000000000000000000000000000000")
	viper.SetDefault("node.max_frame_size", 80)
	viper.SetDefault("node.uplink_interval", time.Minute)
	viper.SetDefault("node.payload", "hello")

	viper.SetDefault("backend.mqtt.server", "tcp://localhost:1883")
	viper.SetDefault("backend.mqtt.clean_session", true)
	viper.SetDefault("backend.mqtt.uplink_topic_template", "node/{{ .DevAddr }}/up")
	viper.SetDefault("backend.mqtt.downlink_topic_template", "node/{{ .DevAddr }}/down")

	viper.SetDefault("metrics.timezone", "Local")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(frameLogCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(resetFCntCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if cfgFile != "" {
		b, err := ioutil.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("chirpstack-node")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/chirpstack-node")
		viper.AddConfigPath("/etc/chirpstack-node")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults.")
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	viperBindEnvs(config.C)

	viperHooks := mapstructure.ComposeDecodeHookFunc(
		viperDecodeJSONSlice,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&config.C, viper.DecodeHook(viperHooks)); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}

	if err := decodeNodeConfig(&config.C); err != nil {
		log.WithError(err).Fatal("decode node config error")
	}

	if config.C.Redis.URL != "" {
		opt, err := redis.ParseURL(config.C.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("redis url error")
		}

		config.C.Redis.Servers = []string{opt.Addr}
		config.C.Redis.Database = opt.DB
		config.C.Redis.Password = opt.Password
	}
}

// decodeNodeConfig decodes the hex encoded device address and session keys.
func decodeNodeConfig(c *config.Config) error {
	if err := c.Node.DevAddr.UnmarshalText([]byte(c.Node.DevAddrString)); err != nil {
		return errors.Wrap(err, "decode dev_addr error")
	}
	if err := c.Node.NwkSKey.UnmarshalText([]byte(c.Node.NwkSKeyString)); err != nil {
		return errors.Wrap(err, "decode nwk_s_key error")
	}
	if err := c.Node.AppSKey.UnmarshalText([]byte(c.Node.AppSKeyString)); err != nil {
		return errors.Wrap(err, "decode app_s_key error")
	}
	return nil
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}

func viperDecodeJSONSlice(rf reflect.Kind, rt reflect.Kind, data interface{}) (interface{}, error) {
	// input must be a string and destination must be a slice
	if rf != reflect.String || rt != reflect.Slice {
		return data, nil
	}

	raw := data.(string)

	// this decoder expects a JSON list
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return data, nil
	}

	var out []map[string]interface{}
	err := json.Unmarshal([]byte(raw), &out)

	return out, err
}
