package source

import (
	"time"

	"codeberg.org/mutker/lumactl/internal/errors"
)

// Config holds the immutable light source parameters. It is supplied at
// controller construction and never mutated afterward.
type Config struct {
	Wavelength          float64       // meters
	MaxPower            float64       // watts
	StabilityTarget     float64       // fraction in (0, 1]
	WarmupTime          time.Duration // total warmup ramp duration
	CalibrationInterval time.Duration // recommended time between calibrations
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Wavelength <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "wavelength must be positive")
	}
	if c.MaxPower <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max power must be positive")
	}
	if c.StabilityTarget <= 0 || c.StabilityTarget > 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "stability target must be in (0, 1]")
	}
	if c.WarmupTime < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "warmup time cannot be negative")
	}
	if c.CalibrationInterval < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "calibration interval cannot be negative")
	}

	return nil
}
