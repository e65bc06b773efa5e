package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcsanches/DCCLite-sub001/internal/device"
)

// devicesFile is the layout of devices.yaml.
type devicesFile struct {
	Devices []device.Config `yaml:"devices"`
}

// LoadDevices reads the registered devices from a YAML file. Unknown keys
// are rejected so a misspelt decoder setting does not silently fall back to
// its default. Decoder-level validation happens when the registry builds the
// devices.
//
// Parameters:
//   - path: Path to devices.yaml
//
// Returns:
//   - []device.Config: Devices in file order
//   - error: If the file cannot be read or parsed, or a device name repeats
func LoadDevices(path string) ([]device.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}

	var f devicesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing devices file: %w", err)
	}

	seen := make(map[string]bool, len(f.Devices))
	for _, d := range f.Devices {
		if seen[d.Name] {
			return nil, fmt.Errorf("devices file: device %q listed twice", d.Name)
		}
		seen[d.Name] = true
	}
	return f.Devices, nil
}

// Merge returns base with every non-zero override applied.
func (t TimingConfig) Merge(base device.Timing) device.Timing {
	pick := func(override, def time.Duration) time.Duration {
		if override > 0 {
			return override
		}
		return def
	}
	return device.Timing{
		ConfigRetry:      pick(t.ConfigRetry, base.ConfigRetry),
		SyncRetry:        pick(t.SyncRetry, base.SyncRetry),
		StateTick:        pick(t.StateTick, base.StateTick),
		StateMinInterval: pick(t.StateMinInterval, base.StateMinInterval),
		PingInterval:     pick(t.PingInterval, base.PingInterval),
		Timeout:          pick(t.Timeout, base.Timeout),
	}
}
