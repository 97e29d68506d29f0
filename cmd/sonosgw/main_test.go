package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stepherg/sonosgw/internal/config"
)

func TestNewDiscoveryWarnsWithoutZones(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := config.Default()

	disc, closeDisc, err := newDiscovery(cfg, zap.New(core))
	if err != nil {
		t.Fatalf("newDiscovery: %v", err)
	}
	defer closeDisc()

	if len(disc.Zones()) != 0 {
		t.Fatalf("zones = %d", len(disc.Zones()))
	}
	if logs.FilterMessageSnippet("no zones").Len() != 1 {
		t.Fatalf("expected a no-zones warning, got %v", logs.All())
	}
}

func TestNewDiscoveryFromZonesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	yaml := "zones:\n  - members:\n      - uuid: RINCON_1\n        roomName: Kitchen\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := config.Default()
	cfg.Discovery.ZonesFile = path

	disc, closeDisc, err := newDiscovery(cfg, zap.New(core))
	if err != nil {
		t.Fatalf("newDiscovery: %v", err)
	}
	defer closeDisc()

	if len(disc.Zones()) != 1 {
		t.Fatalf("zones = %d", len(disc.Zones()))
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}
