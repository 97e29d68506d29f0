package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the gateway. Keys mirror the
// settings.json file the gateway reads at startup.
type Config struct {
	Port           int    `mapstructure:"port"`
	SecurePort     int    `mapstructure:"securePort"`
	IP             string `mapstructure:"ip"`
	CacheDir       string `mapstructure:"cacheDir"`
	Webroot        string `mapstructure:"webroot"`
	PresetDir      string `mapstructure:"presetDir"`
	AnnounceVolume int    `mapstructure:"announceVolume"`

	// Webhook is the outbound event endpoint. Empty disables event forwarding.
	Webhook               string        `mapstructure:"webhook"`
	WebhookType           string        `mapstructure:"webhookType"`
	WebhookData           string        `mapstructure:"webhookData"`
	WebhookHeaderName     string        `mapstructure:"webhookHeaderName"`
	WebhookHeaderContents string        `mapstructure:"webhookHeaderContents"`
	WebhookFormat         string        `mapstructure:"webhookFormat"`
	WebhookTimeout        time.Duration `mapstructure:"webhookTimeout"`

	// Socket enables the push-socket server; events then go to sockets instead of the webhook.
	Socket bool `mapstructure:"socket"`

	HTTPS       HTTPS     `mapstructure:"https"`
	MetricsAddr string    `mapstructure:"metricsAddr"`
	Logging     Logging   `mapstructure:"logging"`
	Tracing     Tracing   `mapstructure:"tracing"`
	Discovery   Discovery `mapstructure:"discovery"`
}

type HTTPS struct {
	Cert string `mapstructure:"cert"`
	Key  string `mapstructure:"key"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Tracing selects where dispatch spans are exported. Empty exporter keeps
// them in process.
type Tracing struct {
	Exporter string `mapstructure:"exporter"` // "" | stdout | jaeger
	Endpoint string `mapstructure:"endpoint"`
}

type Discovery struct {
	Mode      string `mapstructure:"mode"` // memory | mqtt
	ZonesFile string `mapstructure:"zonesFile"`
	MQTT      MQTT   `mapstructure:"mqtt"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker"`
	Prefix   string `mapstructure:"prefix"`
	ClientID string `mapstructure:"clientId"`
}

const (
	WebhookFormatJSON = "json"
	WebhookFormatWRP  = "wrp"

	DiscoveryMemory = "memory"
	DiscoveryMQTT   = "mqtt"

	TracingNone   = ""
	TracingStdout = "stdout"
	TracingJaeger = "jaeger"

	envPrefix = "SONOSGW"
)

func Default() Config {
	return Config{
		Port:           5005,
		SecurePort:     5006,
		IP:             "0.0.0.0",
		CacheDir:       "./cache",
		Webroot:        "./static",
		PresetDir:      "./presets",
		AnnounceVolume: 40,
		WebhookType:    "type",
		WebhookData:    "data",
		WebhookFormat:  WebhookFormatJSON,
		WebhookTimeout: 10 * time.Second,
		Logging:        Logging{Level: "info", Format: "json"},
		Discovery: Discovery{
			Mode: DiscoveryMemory,
			MQTT: MQTT{Prefix: "sonos", ClientID: "sonosgw"},
		},
	}
}

// Load reads path (JSON or YAML, by extension) over the defaults and applies
// SONOSGW_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("port", d.Port)
	v.SetDefault("securePort", d.SecurePort)
	v.SetDefault("ip", d.IP)
	v.SetDefault("cacheDir", d.CacheDir)
	v.SetDefault("webroot", d.Webroot)
	v.SetDefault("presetDir", d.PresetDir)
	v.SetDefault("announceVolume", d.AnnounceVolume)
	v.SetDefault("webhook", d.Webhook)
	v.SetDefault("webhookType", d.WebhookType)
	v.SetDefault("webhookData", d.WebhookData)
	v.SetDefault("webhookHeaderName", d.WebhookHeaderName)
	v.SetDefault("webhookHeaderContents", d.WebhookHeaderContents)
	v.SetDefault("webhookFormat", d.WebhookFormat)
	v.SetDefault("webhookTimeout", d.WebhookTimeout)
	v.SetDefault("socket", d.Socket)
	v.SetDefault("https.cert", d.HTTPS.Cert)
	v.SetDefault("https.key", d.HTTPS.Key)
	v.SetDefault("metricsAddr", d.MetricsAddr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("discovery.mode", d.Discovery.Mode)
	v.SetDefault("discovery.zonesFile", d.Discovery.ZonesFile)
	v.SetDefault("discovery.mqtt.broker", d.Discovery.MQTT.Broker)
	v.SetDefault("discovery.mqtt.prefix", d.Discovery.MQTT.Prefix)
	v.SetDefault("discovery.mqtt.clientId", d.Discovery.MQTT.ClientID)
}

// Validate checks invariants the rest of the gateway relies on.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.SecurePort < 0 || c.SecurePort > 65535 {
		return fmt.Errorf("securePort %d out of range", c.SecurePort)
	}
	if (c.HTTPS.Cert == "") != (c.HTTPS.Key == "") {
		return errors.New("https.cert and https.key must be set together")
	}
	switch c.WebhookFormat {
	case WebhookFormatJSON, WebhookFormatWRP:
	default:
		return fmt.Errorf("webhookFormat must be %q or %q", WebhookFormatJSON, WebhookFormatWRP)
	}
	if c.WebhookTimeout < 0 {
		return errors.New("webhookTimeout must be >= 0")
	}
	switch c.Tracing.Exporter {
	case TracingNone, TracingStdout:
	case TracingJaeger:
		if c.Tracing.Endpoint == "" {
			return errors.New("tracing.endpoint is required for the jaeger exporter")
		}
	default:
		return fmt.Errorf("tracing.exporter must be empty, %q or %q", TracingStdout, TracingJaeger)
	}
	switch c.Discovery.Mode {
	case DiscoveryMemory:
	case DiscoveryMQTT:
		if c.Discovery.MQTT.Broker == "" {
			return errors.New("discovery.mqtt.broker is required in mqtt mode")
		}
	default:
		return fmt.Errorf("discovery.mode must be %q or %q", DiscoveryMemory, DiscoveryMQTT)
	}
	return nil
}

// TLSEnabled reports whether the secure listener should be started.
func (c Config) TLSEnabled() bool {
	return c.SecurePort > 0 && c.HTTPS.Cert != "" && c.HTTPS.Key != ""
}

// Addr returns the plain HTTP listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.IP, c.Port) }

// SecureAddr returns the HTTPS listen address.
func (c Config) SecureAddr() string { return fmt.Sprintf("%s:%d", c.IP, c.SecurePort) }
