package gpu

import (
	"context"
	"sync"

	"codeberg.org/mutker/thermowatch/internal/errors"
	"codeberg.org/mutker/thermowatch/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type reader struct {
	lib    library
	device deviceHandle
	name   string
	mu     sync.Mutex
	logger logger.Logger
}

// New initializes NVML and opens the device at index.
func New(index int) (Reader, error) {
	return newReader(&nvmlLibrary{}, index)
}

func newReader(lib library, index int) (*reader, error) {
	errFactory := errors.New()
	log := logger.Component("gpu")

	if err := lib.open(); err != nil {
		return nil, err
	}

	count, err := lib.deviceCount()
	if err != nil {
		_ = lib.close()
		return nil, err
	}
	if index < 0 || index >= count {
		_ = lib.close()
		return nil, errFactory.WithData(ErrDeviceNotFound, index)
	}

	device, err := lib.device(index)
	if err != nil {
		_ = lib.close()
		return nil, err
	}

	r := newDeviceReader(device, log)
	r.lib = lib

	log.Info().Str("name", r.name).Int("index", index).Msg("Detected GPU")

	return r, nil
}

func newDeviceReader(device deviceHandle, log logger.Logger) *reader {
	r := &reader{device: device, logger: log}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		r.name = name
	} else {
		log.Warn().Str("error", nvml.ErrorString(ret)).Msg("Failed to get GPU name")
	}

	return r
}

func (r *reader) Name() string {
	return r.name
}

func (r *reader) Read(ctx context.Context) (Reading, error) {
	errFactory := errors.New()

	select {
	case <-ctx.Done():
		return Reading{}, errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	temp, ret := r.device.GetTemperature(nvml.TEMPERATURE_GPU)
	if !IsNVMLSuccess(ret) {
		return Reading{}, errFactory.Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}

	speeds, err := readFanSpeeds(r.device)
	if err != nil {
		return Reading{}, err
	}

	draw, limit, err := readPower(r.device)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: Temperature(temp),
		FanSpeeds:   speeds,
		PowerDraw:   draw,
		PowerLimit:  limit,
	}, nil
}

func (r *reader) Close() error {
	if r.lib == nil {
		return nil
	}
	return r.lib.close()
}
