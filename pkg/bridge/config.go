// Copyright 2026 Aiku AI

package bridge

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/aiku/mqtt-aprs/pkg/aprs"
)

//go:embed example-config.yaml
var ExampleConfig string

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"mqtt-aprs.yaml",
	"/etc/mqtt-aprs/mqtt-aprs.yaml",
}

// EnvPrefix is the prefix for environment variable overrides, e.g.
// MQTTAPRS_MQTT_HOST overrides mqtt.HOST.
const EnvPrefix = "MQTTAPRS_"

// ConfigError reports an invalid or inconsistent configuration. It is fatal:
// the process refuses to start rather than run half-configured.
type ConfigError struct {
	Option string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Option, e.Reason)
}

// Config is the complete immutable runtime configuration. It is built once
// at startup and passed by reference; nothing mutates it afterwards.
type Config struct {
	Global   GlobalConfig   `koanf:"global"`
	MQTT     MQTTConfig     `koanf:"mqtt"`
	APRS     APRSConfig     `koanf:"aprs"`
	Outgoing OutgoingConfig `koanf:"mqtt_outgoing"`
	Incoming IncomingConfig `koanf:"aprs_incoming"`
}

type GlobalConfig struct {
	Debug   bool   `koanf:"DEBUG"`
	LogFile string `koanf:"LOGFILE"`
	// StatusAddr is the listen address for the /metrics and /healthz
	// endpoints. Empty disables the status server.
	StatusAddr string `koanf:"STATUS_ADDR"`
}

type MQTTConfig struct {
	Host string `koanf:"HOST" validate:"required"`
	Port int    `koanf:"PORT" validate:"min=1,max=65535"`
	User string `koanf:"USER"`
	Pass string `koanf:"PASS"`
}

type APRSConfig struct {
	Server   string `koanf:"SERVER" validate:"required"`
	Port     int    `koanf:"PORT" validate:"min=1,max=65535"`
	Callsign string `koanf:"CALLSIGN" validate:"required,max=9"`
	SSID     int    `koanf:"SSID" validate:"min=0,max=15"`
	// Pass is the APRS-IS passcode. Empty means: derive it from the
	// callsign when transmitting, log in receive-only otherwise.
	Pass   string `koanf:"PASS"`
	Symbol string `koanf:"SYMBOL" validate:"len=1"`
	Table  string `koanf:"TABLE" validate:"len=1"`
}

type OutgoingConfig struct {
	Enabled bool   `koanf:"ENABLED"`
	Topic   string `koanf:"TOPIC"`
}

type IncomingConfig struct {
	Enabled bool `koanf:"ENABLED"`
	// Filter is the server-side APRS-IS filter expression, e.g.
	// "r/52.0/21.0/50" or "p/N0". Empty sends no filter command.
	Filter      string `koanf:"FILTER"`
	TopicPrefix string `koanf:"TOPIC_PREFIX"`
}

func defaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			Debug:      false,
			LogFile:    "",
			StatusAddr: "",
		},
		MQTT: MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		APRS: APRSConfig{
			Server:   "rotate.aprs2.net",
			Port:     14580,
			Callsign: "N0CALL",
			SSID:     0,
			Symbol:   "[",
			Table:    "/",
		},
		Outgoing: OutgoingConfig{
			Enabled: true,
			Topic:   "owntracks/+/+",
		},
		Incoming: IncomingConfig{
			Enabled:     false,
			TopicPrefix: "owntracks/aprs",
		},
	}
}

// Load builds the configuration from layered sources: built-in defaults,
// then the YAML file at path (or the first DefaultConfigPaths entry that
// exists when path is empty), then MQTTAPRS_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &ConfigError{Option: path, Reason: err.Error()}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &ConfigError{Option: path, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// configSections maps env var section prefixes to koanf sections. Longest
// prefixes first: MQTT_OUTGOING must win over MQTT.
var configSections = []string{"mqtt_outgoing", "aprs_incoming", "global", "mqtt", "aprs"}

// envTransform maps MQTTAPRS_MQTT_OUTGOING_TOPIC to mqtt_outgoing.TOPIC.
// Unrecognized variables are ignored.
func envTransform(key string) string {
	rest := strings.TrimPrefix(key, EnvPrefix)
	for _, section := range configSections {
		prefix := strings.ToUpper(section) + "_"
		if strings.HasPrefix(rest, prefix) {
			return section + "." + strings.TrimPrefix(rest, prefix)
		}
	}
	return ""
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return &ConfigError{
				Option: f.Namespace(),
				Reason: fmt.Sprintf("failed %q validation (value %v)", f.Tag(), f.Value()),
			}
		}
		return err
	}
	if !c.Outgoing.Enabled && !c.Incoming.Enabled {
		return &ConfigError{
			Option: "mqtt_outgoing.ENABLED/aprs_incoming.ENABLED",
			Reason: "at least one bridge direction must be enabled",
		}
	}
	if c.Outgoing.Enabled && c.Outgoing.Topic == "" {
		return &ConfigError{Option: "mqtt_outgoing.TOPIC", Reason: "required when the outgoing direction is enabled"}
	}
	if c.Incoming.Enabled && c.Incoming.TopicPrefix == "" {
		return &ConfigError{Option: "aprs_incoming.TOPIC_PREFIX", Reason: "required when the incoming direction is enabled"}
	}
	if c.APRS.Pass != "" {
		if _, err := strconv.Atoi(c.APRS.Pass); err != nil {
			return &ConfigError{Option: "aprs.PASS", Reason: "must be a numeric passcode or empty"}
		}
	}
	return nil
}

// StationCallsign is the full on-air identity: the callsign, with the SSID
// suffix when one is configured.
func (c *Config) StationCallsign() string {
	if c.APRS.SSID == 0 {
		return c.APRS.Callsign
	}
	return fmt.Sprintf("%s-%d", c.APRS.Callsign, c.APRS.SSID)
}

// APRSAddr is the APRS-IS server host:port.
func (c *Config) APRSAddr() string {
	return net.JoinHostPort(c.APRS.Server, strconv.Itoa(c.APRS.Port))
}

// MQTTBrokerURL is the paho broker URL.
func (c *Config) MQTTBrokerURL() string {
	return fmt.Sprintf("tcp://%s", net.JoinHostPort(c.MQTT.Host, strconv.Itoa(c.MQTT.Port)))
}

// APRSPasscode resolves the effective passcode: the configured value, a
// derived one when transmitting with no passcode set, or receive-only.
func (c *Config) APRSPasscode() string {
	if c.APRS.Pass != "" {
		return c.APRS.Pass
	}
	if c.Outgoing.Enabled {
		return strconv.Itoa(aprs.Passcode(c.APRS.Callsign))
	}
	return aprs.ReceiveOnlyPasscode
}
