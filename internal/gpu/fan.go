package gpu

import (
	"codeberg.org/mutker/thermowatch/internal/errors"
)

// readFanSpeeds returns the speed of every fan in percent. Devices without
// fans report an empty slice.
func readFanSpeeds(device deviceHandle) ([]FanSpeed, error) {
	errFactory := errors.New()

	count, ret := device.GetNumFans()
	if isNotSupported(ret) {
		return []FanSpeed{}, nil
	}
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
	}

	speeds := make([]FanSpeed, count)
	for i := 0; i < count; i++ {
		speed, ret := device.GetFanSpeed_v2(i)
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.Wrap(ErrGetFanSpeedFailed, newNVMLError(ret)).WithData(i)
		}
		speeds[i] = FanSpeed(speed)
	}

	return speeds, nil
}
