package link

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"actuatorlink/config"
	"actuatorlink/host/bridge"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpenerSim(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = config.TransportSim

	b := bridge.New(cfg.Bridge(), bridge.WithOpener(Opener(cfg, discard)))
	ctx := context.Background()
	if err := b.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer b.Close()

	if !b.IsPeerOnline(ctx) {
		t.Error("Simulated peer should be online")
	}
}

func TestOpenerErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	tests := []struct {
		name string
		edit func(*config.Config)
	}{
		{"unknown transport", func(c *config.Config) { c.Transport = "can" }},
		{"missing i2c device", func(c *config.Config) { c.I2C.Device = missing }},
		{"missing serial device", func(c *config.Config) {
			c.Transport = config.TransportSerial
			c.Serial.Device = missing
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.edit(cfg)
			if _, _, err := Opener(cfg, discard)(context.Background()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
