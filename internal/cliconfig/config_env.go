package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (PIXDAQ_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("outdir", os.Getenv("PIXDAQ_OUTDIR"), &cfg.OutDir)
	s.setString("name", os.Getenv("PIXDAQ_NAME"), &cfg.Name)
	s.setString("device", os.Getenv("PIXDAQ_DEVICE"), &cfg.Device)
	s.setString("yml", os.Getenv("PIXDAQ_CHIP_CONFIG"), &cfg.ChipConfig)
	s.setString("inj", os.Getenv("PIXDAQ_INJECT"), &cfg.Inject)
	s.setString("sqlite", os.Getenv("PIXDAQ_SQLITE"), &cfg.SQLitePath)
	s.setString("metrics-listen", os.Getenv("PIXDAQ_METRICS_LISTEN"), &cfg.MetricsListen)
	s.setString("serial-irq", os.Getenv("PIXDAQ_SERIAL_IRQ"), &cfg.Serial.IRQLine)

	if err := s.setDuration("runtime", os.Getenv("PIXDAQ_RUNTIME"), &cfg.Runtime); err != nil {
		return err
	}
	if err := s.setDuration("poll-backoff", os.Getenv("PIXDAQ_POLL_BACKOFF"), &cfg.PollBackoff); err != nil {
		return err
	}

	if err := s.setFloatFromString("thr", os.Getenv("PIXDAQ_THRESHOLD_MV"), &cfg.ThresholdMV); err != nil {
		return err
	}
	if err := s.setFloatFromString("injv", os.Getenv("PIXDAQ_INJECTION_MV"), &cfg.InjectionMV); err != nil {
		return err
	}

	if err := s.setIntFromString("analog", os.Getenv("PIXDAQ_ANALOG_COLUMN"), &cfg.AnalogColumn); err != nil {
		return err
	}
	if err := s.setIntFromString("loglevel", os.Getenv("PIXDAQ_LOG_LEVEL"), &cfg.LogLevel); err != nil {
		return err
	}
	if err := s.setIntFromString("serial-baud", os.Getenv("PIXDAQ_SERIAL_BAUD"), &cfg.Serial.BaudRate); err != nil {
		return err
	}

	s.setBoolFromString("csv", os.Getenv("PIXDAQ_CSV"), &cfg.SaveCSV)
	s.setBoolFromString("match", os.Getenv("PIXDAQ_MATCH"), &cfg.Match)

	return nil
}
