package agent

import (
	"context"

	"codeberg.org/mutker/thermowatch/internal/gpu"
)

// Source is a sensor the agent samples on every tick.
type Source interface {
	Name() string
	Read(ctx context.Context) (gpu.Reading, error)
}

// Record field names posted to the server.
const (
	FieldTemperature    = "temperature"
	FieldTemperatureAvg = "temperatureAvg"
	FieldFanLevel       = "fanLevel"
	FieldPowerDraw      = "powerDraw"
	FieldPowerLimit     = "powerLimit"
	FieldDevice         = "gpuName"
)
