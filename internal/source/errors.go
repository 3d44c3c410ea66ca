package source

import "codeberg.org/mutker/lumactl/internal/errors"

const (
	// Lifecycle errors
	ErrPowerOnFailed     = errors.ErrorCode("source_power_on_failed")
	ErrCalibrationFailed = errors.ErrorCode("source_calibration_failed")

	// Emission errors
	ErrEmissionStartFailed = errors.ErrorCode("source_emission_start_failed")
	ErrPowerAdjustFailed   = errors.ErrorCode("source_power_adjust_failed")
)
