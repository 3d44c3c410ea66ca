package source

import (
	"fmt"
	"time"

	"codeberg.org/mutker/lumactl/internal/errors"
)

// EmissionParameters describes one emission request. It is validated
// before any subsystem is touched and not retained past the emission it
// configures.
type EmissionParameters struct {
	Power     float64       // watts, 0 < Power <= Config.MaxPower
	Duration  time.Duration // 0 = continuous until StopEmission
	Frequency float64       // pulse frequency in Hz, >= 0
	DutyCycle float64       // fraction in (0, 1]
}

// Validate checks the request against the configured power ceiling.
// It is pure: no subsystem calls, no state changes.
func (p EmissionParameters) Validate(maxPower float64) error {
	errFactory := errors.New()

	if p.Power <= 0 || p.Power > maxPower {
		return errFactory.WithData(errors.ErrInvalidParameter,
			fmt.Sprintf("power %.3e W outside (0, %.3e]", p.Power, maxPower))
	}
	if p.Duration < 0 {
		return errFactory.WithData(errors.ErrInvalidParameter, "duration cannot be negative")
	}
	if p.Frequency < 0 {
		return errFactory.WithData(errors.ErrInvalidParameter, "frequency cannot be negative")
	}
	if p.DutyCycle <= 0 || p.DutyCycle > 1 {
		return errFactory.WithData(errors.ErrInvalidParameter,
			fmt.Sprintf("duty cycle %.3f outside (0, 1]", p.DutyCycle))
	}

	return nil
}

// Continuous reports whether the emission runs until explicitly stopped.
func (p EmissionParameters) Continuous() bool {
	return p.Duration == 0
}
