package main

import (
	"strings"

	"github.com/bft-labs/pixdaq/internal/adapters/device/replay"
	"github.com/bft-labs/pixdaq/internal/adapters/device/serial"
	"github.com/bft-labs/pixdaq/internal/adapters/device/sim"
	"github.com/bft-labs/pixdaq/internal/cliconfig"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// openDevice opens the session named by cfg.Device.
func openDevice(cfg *cliconfig.Config, logger ports.Logger) (ports.DeviceSession, error) {
	switch {
	case cfg.Device == "sim":
		sc := sim.DefaultConfig()
		sc.Seed = int64(cfg.SimSeed)
		return sim.New(sc, logger), nil

	case strings.HasPrefix(cfg.Device, "replay:"):
		s, err := replay.Open(strings.TrimPrefix(cfg.Device, "replay:"), logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		s, err := serial.Open(strings.TrimPrefix(cfg.Device, "serial:"), cfg.Serial, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
