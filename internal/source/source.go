// Package source implements the supervisory controller for one light
// source device: power sequencing, warmup, calibration, emission control
// and power adjustment, with state/power invariants enforced on every
// operation.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/lumactl/internal/errors"
	"codeberg.org/mutker/lumactl/internal/events"
	"codeberg.org/mutker/lumactl/internal/logger"
)

// warmupSteps is the fixed power ramp run once during power-on. Step
// durations are weights scaled so the full ramp takes Config.WarmupTime.
var warmupSteps = []struct {
	ratio  float64
	weight float64
}{
	{0.1, 5},
	{0.3, 10},
	{0.6, 10},
	{0.8, 5},
}

const warmupWeightTotal = 30.0

// Status is a point-in-time snapshot of the controller. It is advisory
// telemetry and may observe transient states (e.g. mid-warmup).
type Status struct {
	State         State
	CurrentPower  float64
	OperatingTime time.Duration
	Wavelength    float64
	Metrics       PerformanceMetrics
	Subsystems    SubsystemStatuses
}

type SubsystemStatuses struct {
	Jet       SubsystemStatus
	Optimizer SubsystemStatus
	Monitor   SubsystemStatus
}

// Controller owns the light source state machine. All operations are
// safe for concurrent use; timer-driven auto-stops and explicit stops
// coordinate through the state guard.
type Controller struct {
	cfg       Config
	jet       JetSubsystem
	optimizer OptimizerSubsystem
	monitor   Monitor
	bus       *events.Bus
	errs      errors.Factory

	mu            sync.RWMutex
	state         State
	currentPower  float64
	operatingTime time.Duration
	emissionStart time.Time
	emissionSeq   uint64
	stopTimer     *time.Timer
}

// New builds a controller in the Off state from an immutable config and
// its three collaborators.
func New(cfg Config, jet JetSubsystem, optimizer OptimizerSubsystem, monitor Monitor) (*Controller, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if jet == nil || optimizer == nil || monitor == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "all subsystems are required")
	}

	logger.Info().
		Float64("wavelength_nm", cfg.Wavelength*1e9).
		Float64("max_power_w", cfg.MaxPower).
		Msg("light source controller initialized")

	return &Controller{
		cfg:       cfg,
		jet:       jet,
		optimizer: optimizer,
		monitor:   monitor,
		bus:       events.NewBus(),
		errs:      errFactory,
		state:     StateOff,
	}, nil
}

// RegisterCallback subscribes a listener to controller events
// ("state_change", "power_update", "error"). Unknown event types are
// silently ignored.
func (c *Controller) RegisterCallback(t events.Type, l events.Listener) {
	c.bus.Register(t, l)
}

// PowerOn brings the source from Off to Ready: initialize the jet, warm
// up the optimizer, then run the warmup ramp. Rejected unless the source
// is Off. Cancelling ctx interrupts the ramp and leaves the source in
// Error. Any collaborator failure does the same.
func (c *Controller) PowerOn(ctx context.Context) error {
	if err := c.transition(StateOff, StateStandby); err != nil {
		return err
	}

	logger.Info().Msg("powering on light source")

	if err := c.jet.Initialize(); err != nil {
		return c.enterError(ErrPowerOnFailed, err)
	}
	if err := c.optimizer.WarmUp(); err != nil {
		return c.enterError(ErrPowerOnFailed, err)
	}
	if err := c.runWarmupSequence(ctx); err != nil {
		return c.enterError(ErrPowerOnFailed, err)
	}

	if err := c.transition(StateStandby, StateReady); err != nil {
		return err
	}

	logger.Info().Msg("light source ready")

	return nil
}

func (c *Controller) runWarmupSequence(ctx context.Context) error {
	logger.Debug().Dur("warmup_time", c.cfg.WarmupTime).Msg("running warmup sequence")

	for _, step := range warmupSteps {
		target := c.cfg.MaxPower * step.ratio
		if err := c.optimizer.PrepareForPower(target); err != nil {
			return err
		}

		hold := time.Duration(float64(c.cfg.WarmupTime) * step.weight / warmupWeightTotal)
		if err := wait(ctx, hold); err != nil {
			return c.errs.Wrap(errors.ErrCanceled, err)
		}

		logger.Debug().
			Float64("target_power_w", target).
			Dur("held", hold).
			Msg("warmup step complete")
	}

	return nil
}

// PowerOff shuts the source down from any state: stop emission if
// active, shut down the optimizer and the jet, end in Off with zero
// power. Shutdown failures are logged, never returned.
func (c *Controller) PowerOff() {
	logger.Info().Msg("powering off light source")

	c.StopEmission()

	if err := c.optimizer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("optimizer shutdown failed")
	}
	if err := c.jet.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("jet shutdown failed")
	}

	c.mu.Lock()
	old, changed := c.forceStateLocked(StateOff)
	c.currentPower = 0
	c.cancelStopTimerLocked()
	c.mu.Unlock()

	if changed {
		c.publishStateChange(old, StateOff)
	}
}

// Calibrate realigns all three subsystems. It is gated on Ready and ends
// back in Ready only when the jet, optimizer and sensor calibrations all
// succeed; any failure leaves the source in Error. All three are always
// attempted so every result is known.
func (c *Controller) Calibrate() error {
	if err := c.transition(StateReady, StateCalibrating); err != nil {
		return err
	}

	logger.Info().Msg("calibrating light source")

	results := map[string]error{
		"jet":       c.jet.Calibrate(),
		"optimizer": c.optimizer.Calibrate(),
		"sensors":   c.monitor.CalibrateSensors(),
	}

	var failed []string
	for name, err := range results {
		if err != nil {
			logger.Error().Err(err).Str("subsystem", name).Msg("calibration failed")
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		err := c.errs.WithData(errors.ErrSubsystemFailure, failed)
		return c.enterError(ErrCalibrationFailed, err)
	}

	if err := c.transition(StateCalibrating, StateReady); err != nil {
		return err
	}

	logger.Info().Msg("calibration complete")

	return nil
}

// StartEmission validates the request, configures the subsystems, starts
// real-time optimization and power monitoring, and transitions to
// Emitting. Rejected unless Ready. A failed validation or a collaborator
// failure leaves state and power untouched. When params.Duration > 0 an
// auto-stop fires after that duration unless the emission ends first.
func (c *Controller) StartEmission(params EmissionParameters) error {
	if err := params.Validate(c.cfg.MaxPower); err != nil {
		return err
	}

	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state != StateReady {
		return c.errs.WithData(errors.ErrPreconditionViolation,
			fmt.Sprintf("cannot start emission from state %s", state))
	}

	if err := c.applyEmissionParameters(params); err != nil {
		return c.reportFailure(ErrEmissionStartFailed, err)
	}
	if err := c.optimizer.StartRealTimeOptimization(); err != nil {
		return c.reportFailure(ErrEmissionStartFailed, err)
	}
	if err := c.monitor.StartPowerMonitoring(); err != nil {
		c.stopOptimizationQuietly()
		return c.reportFailure(ErrEmissionStartFailed, err)
	}

	if err := c.transition(StateReady, StateEmitting); err != nil {
		c.stopOptimizationQuietly()
		c.stopMonitoringQuietly()
		return err
	}

	c.mu.Lock()
	c.currentPower = params.Power
	c.emissionStart = time.Now()
	c.emissionSeq++
	if params.Duration > 0 {
		seq := c.emissionSeq
		c.stopTimer = time.AfterFunc(params.Duration, func() {
			c.autoStop(seq)
		})
	}
	c.mu.Unlock()

	c.bus.Publish(events.PowerUpdate, params.Power)

	logger.Info().
		Float64("power_w", params.Power).
		Dur("duration", params.Duration).
		Bool("continuous", params.Continuous()).
		Msg("emission started")

	return nil
}

func (c *Controller) applyEmissionParameters(params EmissionParameters) error {
	if err := c.jet.ConfigureEmission(params); err != nil {
		return err
	}
	if err := c.optimizer.ConfigureOptimization(params); err != nil {
		return err
	}

	return c.monitor.ConfigureMonitoring(params)
}

// autoStop ends a bounded emission once its duration elapses. The
// sequence guard makes a stale timer a no-op when the emission already
// ended or a newer one started.
func (c *Controller) autoStop(seq uint64) {
	logger.Debug().Msg("emission duration elapsed")
	c.stopEmission(&seq)
}

// StopEmission ends the active emission and returns to Ready. It is a
// no-op unless the source is Emitting.
func (c *Controller) StopEmission() {
	c.stopEmission(nil)
}

// stopEmission commits the Emitting->Ready transition inside the guarded
// section, before any collaborator call, so a second stop entering while
// the collaborator stops are still in flight is a no-op. A non-nil seq
// restricts the stop to that emission; a timer that outlived its
// emission does nothing.
func (c *Controller) stopEmission(seq *uint64) {
	c.mu.Lock()
	if c.state != StateEmitting || (seq != nil && *seq != c.emissionSeq) {
		c.mu.Unlock()
		return
	}
	c.cancelStopTimerLocked()
	c.emissionSeq++
	c.operatingTime += time.Since(c.emissionStart)
	c.currentPower = 0
	old, _ := c.forceStateLocked(StateReady)
	c.mu.Unlock()

	c.publishStateChange(old, StateReady)

	c.stopOptimizationQuietly()
	c.stopMonitoringQuietly()

	logger.Info().Msg("emission stopped")
}

// SetPower adjusts the output power of a running emission through the
// optimizer. Rejected unless Emitting or when the power is outside
// (0, MaxPower]. On failure state and power are unchanged.
func (c *Controller) SetPower(watts float64) error {
	if watts <= 0 || watts > c.cfg.MaxPower {
		return c.errs.WithData(errors.ErrInvalidParameter,
			fmt.Sprintf("power %.3e W outside (0, %.3e]", watts, c.cfg.MaxPower))
	}

	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state != StateEmitting {
		return c.errs.WithData(errors.ErrPreconditionViolation,
			fmt.Sprintf("cannot adjust power from state %s", state))
	}

	if err := c.optimizer.AdjustPower(watts); err != nil {
		return c.reportFailure(ErrPowerAdjustFailed, err)
	}

	c.mu.Lock()
	c.currentPower = watts
	c.mu.Unlock()

	c.bus.Publish(events.PowerUpdate, watts)

	logger.Info().Float64("power_w", watts).Msg("power adjusted")

	return nil
}

// Status returns a read-only snapshot. It never mutates state and may
// run concurrently with mutating operations.
func (c *Controller) Status() Status {
	c.mu.RLock()
	status := Status{
		State:         c.state,
		CurrentPower:  c.currentPower,
		OperatingTime: c.operatingTime,
		Wavelength:    c.cfg.Wavelength,
	}
	if c.state == StateEmitting {
		status.OperatingTime += time.Since(c.emissionStart)
	}
	c.mu.RUnlock()

	status.Metrics = c.monitor.CurrentMetrics()
	status.Subsystems = SubsystemStatuses{
		Jet:       c.jet.Status(),
		Optimizer: c.optimizer.Status(),
		Monitor:   c.monitor.Status(),
	}

	return status
}

// transition atomically moves the state machine from one state to
// another, rejecting the move when the source is not in the expected
// state or the edge is not declared. The state change event is published
// after the transition is committed.
func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	if c.state != from {
		current := c.state
		c.mu.Unlock()
		return c.errs.WithData(errors.ErrPreconditionViolation,
			fmt.Sprintf("expected state %s, currently %s", from, current))
	}
	if !validTransition(from, to) {
		c.mu.Unlock()
		return c.errs.WithData(errors.ErrInvalidOperation,
			fmt.Sprintf("undeclared transition %s -> %s", from, to))
	}
	c.state = to
	c.mu.Unlock()

	c.publishStateChange(from, to)

	return nil
}

// forceStateLocked moves to the target state along a declared edge while
// the caller holds the write lock, returning the previous state and
// whether anything changed. Undeclared edges and same-state moves are
// refused.
func (c *Controller) forceStateLocked(to State) (State, bool) {
	old := c.state
	if old == to || !validTransition(old, to) {
		return old, false
	}
	c.state = to

	return old, true
}

// enterError records a subsystem failure: force the Error state, publish
// the failure and return it. The Error state holds until a PowerOff /
// PowerOn cycle.
func (c *Controller) enterError(code errors.ErrorCode, err error) error {
	werr := c.errs.Wrap(code, err)

	c.mu.Lock()
	old, changed := c.forceStateLocked(StateError)
	c.currentPower = 0
	c.cancelStopTimerLocked()
	c.mu.Unlock()

	if changed {
		c.publishStateChange(old, StateError)
	}
	c.bus.Publish(events.Error, error(werr))

	logger.ErrorWithCode(werr).Msg("light source entered error state")

	return werr
}

// reportFailure publishes a subsystem failure without changing state.
func (c *Controller) reportFailure(code errors.ErrorCode, err error) error {
	werr := c.errs.Wrap(code, err)
	c.bus.Publish(events.Error, error(werr))
	logger.ErrorWithCode(werr).Msg("operation aborted")

	return werr
}

func (c *Controller) publishStateChange(old, current State) {
	c.bus.Publish(events.StateChange, StateChangeEvent{
		Old:       old,
		New:       current,
		Timestamp: time.Now(),
	})
}

func (c *Controller) cancelStopTimerLocked() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
}

func (c *Controller) stopOptimizationQuietly() {
	if err := c.optimizer.StopRealTimeOptimization(); err != nil {
		logger.Error().Err(err).Msg("failed to stop real-time optimization")
	}
}

func (c *Controller) stopMonitoringQuietly() {
	if err := c.monitor.StopPowerMonitoring(); err != nil {
		logger.Error().Err(err).Msg("failed to stop power monitoring")
	}
}

// wait sleeps for d but aborts as soon as ctx is canceled, so long
// warmup holds stay interruptible.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
