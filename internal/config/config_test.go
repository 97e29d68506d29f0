package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	d := Default()
	if cfg.Port != d.Port || cfg.SecurePort != d.SecurePort || cfg.IP != d.IP {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.WebhookType != "type" || cfg.WebhookData != "data" {
		t.Fatalf("unexpected field names %q/%q", cfg.WebhookType, cfg.WebhookData)
	}
	if cfg.Webhook != "" {
		t.Fatalf("webhook should default to empty, got %q", cfg.Webhook)
	}
	if cfg.WebhookTimeout != 10*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.WebhookTimeout)
	}
}

func TestLoadSettingsJSON(t *testing.T) {
	p := writeFile(t, "settings.json", `{
		"port": 8080,
		"announceVolume": 25,
		"webhook": "http://hooks.local/sonos",
		"webhookType": "kind",
		"webhookData": "payload",
		"webhookHeaderName": "X-Token",
		"webhookHeaderContents": "secret",
		"webhookTimeout": "2s",
		"socket": true,
		"discovery": {"mode": "memory", "zonesFile": "zones.yaml"}
	}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.AnnounceVolume != 25 {
		t.Fatalf("numeric keys not decoded: %+v", cfg)
	}
	if cfg.Webhook != "http://hooks.local/sonos" || cfg.WebhookType != "kind" || cfg.WebhookData != "payload" {
		t.Fatalf("webhook keys not decoded: %+v", cfg)
	}
	if cfg.WebhookHeaderName != "X-Token" || cfg.WebhookHeaderContents != "secret" {
		t.Fatalf("header keys not decoded: %+v", cfg)
	}
	if cfg.WebhookTimeout != 2*time.Second {
		t.Fatalf("timeout = %v", cfg.WebhookTimeout)
	}
	if !cfg.Socket {
		t.Fatalf("socket flag not decoded")
	}
	if cfg.Discovery.ZonesFile != "zones.yaml" {
		t.Fatalf("zonesFile = %q", cfg.Discovery.ZonesFile)
	}
	// untouched keys keep their defaults
	if cfg.SecurePort != 5006 || cfg.Discovery.MQTT.Prefix != "sonos" {
		t.Fatalf("defaults lost on merge: %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SONOSGW_WEBHOOK", "http://env.local/hook")
	t.Setenv("SONOSGW_PORT", "6000")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook != "http://env.local/hook" {
		t.Fatalf("webhook = %q", cfg.Webhook)
	}
	if cfg.Port != 6000 {
		t.Fatalf("port = %d", cfg.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	p := writeFile(t, "settings.json", `{"webhookFormat": "xml"}`)
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "webhookFormat") {
		t.Fatalf("expected webhookFormat error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults ok", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "port"},
		{"bad secure port", func(c *Config) { c.SecurePort = 70000 }, "securePort"},
		{"partial tls", func(c *Config) { c.HTTPS.Cert = "cert.pem" }, "https"},
		{"negative timeout", func(c *Config) { c.WebhookTimeout = -time.Second }, "webhookTimeout"},
		{"unknown discovery", func(c *Config) { c.Discovery.Mode = "ssdp" }, "discovery.mode"},
		{"mqtt without broker", func(c *Config) { c.Discovery.Mode = DiscoveryMQTT }, "broker"},
		{"wrp format", func(c *Config) { c.WebhookFormat = WebhookFormatWRP }, ""},
		{"stdout tracing", func(c *Config) { c.Tracing.Exporter = TracingStdout }, ""},
		{"jaeger without endpoint", func(c *Config) { c.Tracing.Exporter = TracingJaeger }, "tracing.endpoint"},
		{"unknown exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestTLSEnabled(t *testing.T) {
	c := Default()
	if c.TLSEnabled() {
		t.Fatalf("tls should be off by default")
	}
	c.HTTPS = HTTPS{Cert: "c.pem", Key: "k.pem"}
	if !c.TLSEnabled() {
		t.Fatalf("tls should be on with cert and key")
	}
	if got := c.SecureAddr(); got != "0.0.0.0:5006" {
		t.Fatalf("SecureAddr = %q", got)
	}
}
