package gpu

import (
	"codeberg.org/mutker/thermowatch/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// library is the slice of NVML the sensor reader needs: a session that is
// opened once, enumerated, and closed when the agent exits.
type library interface {
	open() error
	close() error
	deviceCount() (int, error)
	device(index int) (deviceHandle, error)
}

// nvmlLibrary talks to the real driver. Calls made outside an open session
// fail with ErrNotInitialized.
type nvmlLibrary struct {
	active bool
}

func (l *nvmlLibrary) open() error {
	if l.active {
		return nil
	}
	if ret := nvml.Init(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}
	l.active = true
	return nil
}

func (l *nvmlLibrary) close() error {
	if !l.active {
		return nil
	}
	if ret := nvml.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}
	l.active = false
	return nil
}

func (l *nvmlLibrary) deviceCount() (int, error) {
	if !l.active {
		return 0, errors.New().New(ErrNotInitialized)
	}
	n, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}
	return n, nil
}

func (l *nvmlLibrary) device(index int) (deviceHandle, error) {
	if !l.active {
		return nil, errors.New().New(ErrNotInitialized)
	}
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errors.New().Wrap(ErrDeviceNotFound, newNVMLError(ret)).WithData(index)
	}
	return dev, nil
}
