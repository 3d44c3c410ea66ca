package source_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/lumactl/internal/errors"
	"codeberg.org/mutker/lumactl/internal/events"
	"codeberg.org/mutker/lumactl/internal/source"
	"codeberg.org/mutker/lumactl/internal/subsystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	ctrl *source.Controller
	jet  *subsystem.FakeJet
	opt  *subsystem.FakeOptimizer
	mon  *subsystem.FakeMonitor

	transitions  []source.StateChangeEvent
	powerUpdates []float64
	errs         []error
}

// newHarness builds a controller over fakes with a zero-length warmup so
// tests run instantly.
func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		jet: &subsystem.FakeJet{},
		opt: &subsystem.FakeOptimizer{},
		mon: &subsystem.FakeMonitor{},
	}

	cfg := source.Config{
		Wavelength:          5.8e-9,
		MaxPower:            testMaxPower,
		StabilityTarget:     0.01,
		WarmupTime:          0,
		CalibrationInterval: time.Hour,
	}

	ctrl, err := source.New(cfg, h.jet, h.opt, h.mon)
	require.NoError(t, err)
	h.ctrl = ctrl

	ctrl.RegisterCallback(events.StateChange, func(payload any) {
		h.transitions = append(h.transitions, payload.(source.StateChangeEvent))
	})
	ctrl.RegisterCallback(events.PowerUpdate, func(payload any) {
		h.powerUpdates = append(h.powerUpdates, payload.(float64))
	})
	ctrl.RegisterCallback(events.Error, func(payload any) {
		h.errs = append(h.errs, payload.(error))
	})

	return h
}

func (h *harness) powerOn(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.PowerOn(context.Background()))
	require.Equal(t, source.StateReady, h.ctrl.Status().State)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := source.New(source.Config{Wavelength: 5.8e-9, MaxPower: 0, StabilityTarget: 0.01},
		&subsystem.FakeJet{}, &subsystem.FakeOptimizer{}, &subsystem.FakeMonitor{})
	assert.Error(t, err)

	_, err = source.New(source.Config{Wavelength: 5.8e-9, MaxPower: 1e-9, StabilityTarget: 0.01},
		nil, &subsystem.FakeOptimizer{}, &subsystem.FakeMonitor{})
	assert.Error(t, err)
}

func TestPowerOn(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.PowerOn(context.Background()))

	status := h.ctrl.Status()
	assert.Equal(t, source.StateReady, status.State)
	assert.Zero(t, status.CurrentPower)

	assert.Equal(t, 1, h.jet.CallCount("initialize"))
	assert.Equal(t, 1, h.opt.CallCount("warm_up"))

	// Warmup ramp prepares 10/30/60/80% of max power, in order.
	expected := []float64{0.1 * testMaxPower, 0.3 * testMaxPower, 0.6 * testMaxPower, 0.8 * testMaxPower}
	require.Len(t, h.opt.PreparedPowers, len(expected))
	for i, want := range expected {
		assert.InDelta(t, want, h.opt.PreparedPowers[i], 1e-18)
	}

	require.Len(t, h.transitions, 2)
	assert.Equal(t, source.StateOff, h.transitions[0].Old)
	assert.Equal(t, source.StateStandby, h.transitions[0].New)
	assert.Equal(t, source.StateStandby, h.transitions[1].Old)
	assert.Equal(t, source.StateReady, h.transitions[1].New)
	assert.False(t, h.transitions[0].Timestamp.IsZero())
}

func TestPowerOnRejectedWhenAlreadyOn(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	err := h.ctrl.PowerOn(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrPreconditionViolation, errors.CodeOf(err))

	assert.Equal(t, source.StateReady, h.ctrl.Status().State, "state unchanged by rejected power on")
	assert.Equal(t, 1, h.jet.CallCount("initialize"), "warmup sequence must not run twice")
	assert.Len(t, h.opt.PreparedPowers, 4)
}

func TestPowerOnSubsystemFailure(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*harness)
	}{
		{"jet initialize fails", func(h *harness) { h.jet.InitializeErr = assert.AnError }},
		{"optimizer warmup fails", func(h *harness) { h.opt.WarmUpErr = assert.AnError }},
		{"prepare for power fails", func(h *harness) { h.opt.PrepareErr = assert.AnError }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(h)

			err := h.ctrl.PowerOn(context.Background())
			require.Error(t, err)

			status := h.ctrl.Status()
			assert.Equal(t, source.StateError, status.State)
			assert.Zero(t, status.CurrentPower)
			require.NotEmpty(t, h.errs, "failure must be published as an error event")

			last := h.transitions[len(h.transitions)-1]
			assert.Equal(t, source.StateStandby, last.Old)
			assert.Equal(t, source.StateError, last.New)
		})
	}
}

func TestPowerOnCanceled(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ctrl.PowerOn(ctx)
	require.Error(t, err)
	assert.Equal(t, source.StateError, h.ctrl.Status().State)
}

func TestErrorStateOnlyLeavesViaPowerCycle(t *testing.T) {
	h := newHarness(t)
	h.jet.InitializeErr = assert.AnError
	require.Error(t, h.ctrl.PowerOn(context.Background()))
	require.Equal(t, source.StateError, h.ctrl.Status().State)

	assert.Error(t, h.ctrl.Calibrate())
	assert.Error(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1}))
	assert.Equal(t, source.StateError, h.ctrl.Status().State)

	h.jet.InitializeErr = nil
	h.ctrl.PowerOff()
	require.Equal(t, source.StateOff, h.ctrl.Status().State)
	assert.NoError(t, h.ctrl.PowerOn(context.Background()))
	assert.Equal(t, source.StateReady, h.ctrl.Status().State)
}

func TestCalibrate(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	require.NoError(t, h.ctrl.Calibrate())
	assert.Equal(t, source.StateReady, h.ctrl.Status().State)
	assert.Equal(t, 1, h.jet.CallCount("calibrate"))
	assert.Equal(t, 1, h.opt.CallCount("calibrate"))
	assert.Equal(t, 1, h.mon.CallCount("calibrate_sensors"))
}

func TestCalibrateRequiresReady(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Calibrate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrPreconditionViolation, errors.CodeOf(err))
	assert.Equal(t, source.StateOff, h.ctrl.Status().State)
	assert.Zero(t, h.jet.CallCount("calibrate"), "collaborators untouched on rejection")
}

func TestCalibrateFailureEntersError(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*harness)
	}{
		{"jet calibration fails", func(h *harness) { h.jet.CalibrateErr = assert.AnError }},
		{"optimizer calibration fails", func(h *harness) { h.opt.CalibrateErr = assert.AnError }},
		{"sensor calibration fails", func(h *harness) { h.mon.CalibrateErr = assert.AnError }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.powerOn(t)
			tt.mutate(h)

			err := h.ctrl.Calibrate()
			require.Error(t, err)
			assert.Equal(t, source.StateError, h.ctrl.Status().State, "calibration failure must never end in Ready")

			// All three calibrations run even when one fails.
			assert.Equal(t, 1, h.jet.CallCount("calibrate"))
			assert.Equal(t, 1, h.opt.CallCount("calibrate"))
			assert.Equal(t, 1, h.mon.CallCount("calibrate_sensors"))
			assert.NotEmpty(t, h.errs)
		})
	}
}

func TestStartEmission(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	params := source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}
	require.NoError(t, h.ctrl.StartEmission(params))

	status := h.ctrl.Status()
	assert.Equal(t, source.StateEmitting, status.State)
	assert.InDelta(t, 2.5e-9, status.CurrentPower, 1e-18)

	require.Len(t, h.jet.Configured, 1)
	assert.Equal(t, params, h.jet.Configured[0])
	assert.Equal(t, 1, h.opt.CallCount("configure_optimization"))
	assert.Equal(t, 1, h.mon.CallCount("configure_monitoring"))
	assert.Equal(t, 1, h.opt.CallCount("start_optimization"))
	assert.Equal(t, 1, h.mon.CallCount("start_monitoring"))

	require.Len(t, h.powerUpdates, 1)
	assert.InDelta(t, 2.5e-9, h.powerUpdates[0], 1e-18)
}

func TestStartEmissionRejectedWhenNotReady(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.StartEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrPreconditionViolation, errors.CodeOf(err))
	assert.Equal(t, source.StateOff, h.ctrl.Status().State)
	assert.Zero(t, h.jet.CallCount("configure_emission"))
}

func TestStartEmissionOverMaxPowerRejected(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	err := h.ctrl.StartEmission(source.EmissionParameters{Power: 6e-9, DutyCycle: 1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidParameter, errors.CodeOf(err))

	status := h.ctrl.Status()
	assert.Equal(t, source.StateReady, status.State, "state unchanged by invalid request")
	assert.Zero(t, status.CurrentPower)
	assert.Empty(t, h.powerUpdates, "no power_update for a rejected emission")
	assert.Zero(t, h.jet.CallCount("configure_emission"), "no subsystem touched before validation passes")
}

func TestStartEmissionSubsystemFailureLeavesReady(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	h.opt.StartErr = assert.AnError

	err := h.ctrl.StartEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1})
	require.Error(t, err)

	status := h.ctrl.Status()
	assert.Equal(t, source.StateReady, status.State)
	assert.Zero(t, status.CurrentPower)
	assert.NotEmpty(t, h.errs)
	assert.Empty(t, h.powerUpdates)
}

func TestStopEmission(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))

	h.ctrl.StopEmission()

	status := h.ctrl.Status()
	assert.Equal(t, source.StateReady, status.State)
	assert.Zero(t, status.CurrentPower)
	assert.Equal(t, 1, h.opt.CallCount("stop_optimization"))
	assert.Equal(t, 1, h.mon.CallCount("stop_monitoring"))
}

func TestStopEmissionNoopWhenNotEmitting(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	h.ctrl.StopEmission()
	assert.Equal(t, source.StateReady, h.ctrl.Status().State)
	assert.Zero(t, h.opt.CallCount("stop_optimization"))
}

func TestAutoStopAfterDuration(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	params := source.EmissionParameters{Power: 2.5e-9, Duration: 30 * time.Millisecond, DutyCycle: 1}
	require.NoError(t, h.ctrl.StartEmission(params))
	assert.Equal(t, source.StateEmitting, h.ctrl.Status().State)

	require.Eventually(t, func() bool {
		return h.ctrl.Status().State == source.StateReady
	}, time.Second, 5*time.Millisecond, "bounded emission must auto-stop")

	assert.Zero(t, h.ctrl.Status().CurrentPower)
	assert.Equal(t, 1, h.opt.CallCount("stop_optimization"))
}

func TestAutoStopCanceledByExplicitStop(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	params := source.EmissionParameters{Power: 2.5e-9, Duration: 20 * time.Millisecond, DutyCycle: 1}
	require.NoError(t, h.ctrl.StartEmission(params))
	h.ctrl.StopEmission()
	require.Equal(t, source.StateReady, h.ctrl.Status().State)

	// A second, unbounded emission must not be killed by the first
	// emission's timer.
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, source.StateEmitting, h.ctrl.Status().State)
}

// slowStopOptimizer holds StopRealTimeOptimization open until released,
// widening the window between the stop commit and the collaborator
// calls.
type slowStopOptimizer struct {
	*subsystem.FakeOptimizer

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (o *slowStopOptimizer) StopRealTimeOptimization() error {
	err := o.FakeOptimizer.StopRealTimeOptimization()
	o.once.Do(func() { close(o.entered) })
	<-o.release

	return err
}

func TestOverlappingStopsStopSubsystemsOnce(t *testing.T) {
	jet := &subsystem.FakeJet{}
	opt := &slowStopOptimizer{
		FakeOptimizer: &subsystem.FakeOptimizer{},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	mon := &subsystem.FakeMonitor{}

	cfg := source.Config{
		Wavelength:          5.8e-9,
		MaxPower:            testMaxPower,
		StabilityTarget:     0.01,
		WarmupTime:          0,
		CalibrationInterval: time.Hour,
	}
	ctrl, err := source.New(cfg, jet, opt, mon)
	require.NoError(t, err)

	require.NoError(t, ctrl.PowerOn(context.Background()))
	require.NoError(t, ctrl.StartEmission(source.EmissionParameters{
		Power:     1e-9,
		Duration:  5 * time.Millisecond,
		DutyCycle: 1,
	}))

	// The auto-stop is now parked inside the optimizer stop. The
	// Emitting -> Ready commit must already have happened, so an
	// explicit stop arriving in this window is a no-op.
	<-opt.entered
	assert.Equal(t, source.StateReady, ctrl.Status().State)
	ctrl.StopEmission()
	close(opt.release)

	require.Eventually(t, func() bool {
		return mon.CallCount("stop_monitoring") == 1
	}, time.Second, 5*time.Millisecond, "auto-stop must finish once released")

	assert.Equal(t, 1, opt.CallCount("stop_optimization"))
	assert.Equal(t, 1, mon.CallCount("stop_monitoring"))
}

func TestSetPower(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))

	require.NoError(t, h.ctrl.SetPower(1.5e-9))
	assert.InDelta(t, 1.5e-9, h.ctrl.Status().CurrentPower, 1e-18)
	require.Len(t, h.opt.AdjustedPowers, 1)
	assert.InDelta(t, 1.5e-9, h.opt.AdjustedPowers[0], 1e-18)
	require.Len(t, h.powerUpdates, 2, "initial emission plus adjustment")
	assert.InDelta(t, 1.5e-9, h.powerUpdates[1], 1e-18)
}

func TestSetPowerRejectedOutOfRange(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))

	for _, watts := range []float64{0, -1e-9, 6e-9} {
		err := h.ctrl.SetPower(watts)
		require.Error(t, err)
		assert.Equal(t, errors.ErrInvalidParameter, errors.CodeOf(err))
	}

	assert.InDelta(t, 2.5e-9, h.ctrl.Status().CurrentPower, 1e-18, "power unchanged by rejected adjustments")
	assert.Zero(t, h.opt.CallCount("adjust_power"))
}

func TestSetPowerRejectedWhenNotEmitting(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	err := h.ctrl.SetPower(1e-9)
	require.Error(t, err)
	assert.Equal(t, errors.ErrPreconditionViolation, errors.CodeOf(err))
}

func TestSetPowerOptimizerFailureLeavesPowerUnchanged(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))
	h.opt.AdjustPowerErr = assert.AnError

	err := h.ctrl.SetPower(1e-9)
	require.Error(t, err)

	status := h.ctrl.Status()
	assert.Equal(t, source.StateEmitting, status.State)
	assert.InDelta(t, 2.5e-9, status.CurrentPower, 1e-18)
	require.Len(t, h.powerUpdates, 1, "no power_update on failed adjustment")
}

func TestPowerOffIdempotent(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	h.ctrl.PowerOff()
	require.Equal(t, source.StateOff, h.ctrl.Status().State)
	n := len(h.transitions)

	h.ctrl.PowerOff()
	assert.Equal(t, source.StateOff, h.ctrl.Status().State)
	assert.Len(t, h.transitions, n, "repeated power off publishes no state change")
}

func TestPowerOffDuringEmission(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))

	h.ctrl.PowerOff()

	status := h.ctrl.Status()
	assert.Equal(t, source.StateOff, status.State)
	assert.Zero(t, status.CurrentPower)
	assert.Equal(t, 1, h.opt.CallCount("stop_optimization"))
	assert.Equal(t, 1, h.opt.CallCount("shutdown"))
	assert.Equal(t, 1, h.jet.CallCount("shutdown"))
}

func TestPowerOffBestEffortOnShutdownFailure(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)
	h.opt.ShutdownErr = assert.AnError
	h.jet.ShutdownErr = assert.AnError

	h.ctrl.PowerOff()

	status := h.ctrl.Status()
	assert.Equal(t, source.StateOff, status.State)
	assert.Zero(t, status.CurrentPower)
}

func TestFullRoundTrip(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.PowerOn(context.Background()))
	require.NoError(t, h.ctrl.Calibrate())
	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 2.5e-9, DutyCycle: 1}))
	h.ctrl.StopEmission()
	h.ctrl.PowerOff()

	status := h.ctrl.Status()
	assert.Equal(t, source.StateOff, status.State)
	assert.Zero(t, status.CurrentPower)

	// Every committed transition is published with matching edges, and
	// the chain is contiguous.
	expected := []source.State{
		source.StateStandby, source.StateReady,
		source.StateCalibrating, source.StateReady,
		source.StateEmitting, source.StateReady,
		source.StateOff,
	}
	require.Len(t, h.transitions, len(expected))

	prev := source.StateOff
	for i, ev := range h.transitions {
		assert.Equal(t, prev, ev.Old, "transition %d old state", i)
		assert.Equal(t, expected[i], ev.New, "transition %d new state", i)
		prev = ev.New
	}
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t)
	h.mon.Metrics = source.PerformanceMetrics{"stability": 0.995}
	h.powerOn(t)

	status := h.ctrl.Status()
	assert.Equal(t, source.StateReady, status.State)
	assert.InDelta(t, 5.8e-9, status.Wavelength, 1e-15)
	assert.InDelta(t, 0.995, status.Metrics["stability"], 1e-9)
	assert.Equal(t, "jet", status.Subsystems.Jet.Name)
	assert.Equal(t, "optimizer", status.Subsystems.Optimizer.Name)
	assert.Equal(t, "monitor", status.Subsystems.Monitor.Name)
}

func TestOperatingTimeAccumulatesWhileEmitting(t *testing.T) {
	h := newHarness(t)
	h.powerOn(t)

	require.NoError(t, h.ctrl.StartEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1}))
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, h.ctrl.Status().OperatingTime, time.Duration(0))

	h.ctrl.StopEmission()
	recorded := h.ctrl.Status().OperatingTime
	assert.GreaterOrEqual(t, recorded, 20*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, recorded, h.ctrl.Status().OperatingTime, "operating time frozen while not emitting")
}
