package gpu

import (
	"context"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Reader samples a GPU's thermal and power sensors. Implementations never
// change device settings.
type Reader interface {
	Name() string
	Read(ctx context.Context) (Reading, error)
	Close() error
}

// Reading is one snapshot of the device sensors.
type Reading struct {
	Temperature Temperature
	FanSpeeds   []FanSpeed
	PowerDraw   Watts
	PowerLimit  Watts
}

// Domain types for type safety
type (
	Temperature int
	FanSpeed    int
	Watts       float64
)

// AverageFanSpeed returns the mean over all fans, or 0 without fans.
func (r Reading) AverageFanSpeed() float64 {
	if len(r.FanSpeeds) == 0 {
		return 0
	}
	var sum int
	for _, s := range r.FanSpeeds {
		sum += int(s)
	}
	return float64(sum) / float64(len(r.FanSpeeds))
}

// deviceHandle is the subset of nvml.Device the reader uses.
type deviceHandle interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(int) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetPowerManagementLimit() (uint32, nvml.Return)
}
