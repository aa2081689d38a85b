// Package link opens the bus named by the configuration: a Linux i2c-dev
// adapter, a UART bridged to the peer, or the in-process simulator.
package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"actuatorlink/config"
	"actuatorlink/host/bridge"
	"actuatorlink/host/i2c"
	"actuatorlink/host/serial"
	"actuatorlink/sim"
	"actuatorlink/transport"
)

// Opener returns a bridge.Opener for cfg.Transport.
func Opener(cfg *config.Config, log *slog.Logger) bridge.Opener {
	return func(ctx context.Context) (transport.Bus, io.Closer, error) {
		switch cfg.Transport {
		case config.TransportI2C:
			return openI2C(cfg, log)
		case config.TransportSerial:
			return openSerial(cfg, log)
		case config.TransportSim:
			log.Info("using simulated peer")
			return sim.New(), nil, nil
		}
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func openI2C(cfg *config.Config, log *slog.Logger) (transport.Bus, io.Closer, error) {
	bus, err := i2c.Open(cfg.I2C.Device)
	if err != nil {
		return nil, nil, err
	}
	// The adapter's own timeout bounds a transfer that the transport
	// has already given up on.
	if err := bus.SetTimeout(cfg.Timing.ReceiveTimeout); err != nil {
		log.Warn("failed to set adapter timeout", "device", cfg.I2C.Device, "err", err)
	}
	log.Info("opened i2c bus", "device", bus.Path(), "address", fmt.Sprintf("0x%02x", cfg.I2C.Address))
	return transport.NewI2C(bus), bus, nil
}

func openSerial(cfg *config.Config, log *slog.Logger) (transport.Bus, io.Closer, error) {
	port, err := serial.Open(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("opened serial port", "device", port.Device(), "baud", cfg.Serial.Baud)
	return transport.NewSerial(port), port, nil
}
