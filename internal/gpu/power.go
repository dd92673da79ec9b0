package gpu

import (
	"codeberg.org/mutker/thermowatch/internal/errors"
)

const milliWattsToWatts = 1000

// readPower returns the current draw and the enforced limit. A device that
// does not report power yields zeros rather than an error.
func readPower(device deviceHandle) (draw, limit Watts, err error) {
	errFactory := errors.New()

	usage, ret := device.GetPowerUsage()
	switch {
	case isNotSupported(ret):
		usage = 0
	case !IsNVMLSuccess(ret):
		return 0, 0, errFactory.Wrap(ErrPowerUsageFailed, newNVMLError(ret))
	}

	managed, ret := device.GetPowerManagementLimit()
	switch {
	case isNotSupported(ret):
		managed = 0
	case !IsNVMLSuccess(ret):
		return 0, 0, errFactory.Wrap(ErrPowerLimitFailed, newNVMLError(ret))
	}

	return Watts(float64(usage) / milliWattsToWatts), Watts(float64(managed) / milliWattsToWatts), nil
}
