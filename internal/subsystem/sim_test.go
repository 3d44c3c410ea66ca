package subsystem_test

import (
	"testing"

	"codeberg.org/mutker/lumactl/internal/source"
	"codeberg.org/mutker/lumactl/internal/subsystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimJetLifecycle(t *testing.T) {
	jet := subsystem.NewSimJet()

	assert.Equal(t, "offline", jet.Status().State)
	assert.Error(t, jet.Calibrate(), "calibration requires initialization")

	require.NoError(t, jet.Initialize())
	assert.Equal(t, "normal", jet.Status().State)
	assert.NoError(t, jet.Calibrate())

	params := source.EmissionParameters{Power: 1e-9, DutyCycle: 1}
	require.NoError(t, jet.ConfigureEmission(params))
	assert.Equal(t, "yes", jet.Status().Detail["configured"])

	require.NoError(t, jet.Shutdown())
	assert.Equal(t, "offline", jet.Status().State)
}

func TestSimJetConfigureRequiresInit(t *testing.T) {
	jet := subsystem.NewSimJet()
	err := jet.ConfigureEmission(source.EmissionParameters{Power: 1e-9, DutyCycle: 1})
	assert.Error(t, err)
}

func TestSimOptimizerLifecycle(t *testing.T) {
	opt := subsystem.NewSimOptimizer()

	assert.Error(t, opt.Calibrate(), "calibration requires warmup")
	assert.Error(t, opt.AdjustPower(1e-9), "power adjustment requires running optimization")

	require.NoError(t, opt.WarmUp())
	assert.NoError(t, opt.Calibrate())
	assert.NoError(t, opt.PrepareForPower(2e-9))

	require.NoError(t, opt.StartRealTimeOptimization())
	assert.Equal(t, "optimizing", opt.Status().State)
	assert.NoError(t, opt.AdjustPower(1e-9))

	require.NoError(t, opt.StopRealTimeOptimization())
	assert.Equal(t, "idle", opt.Status().State)

	require.NoError(t, opt.Shutdown())
	assert.Error(t, opt.Calibrate())
}

func TestSimMonitorMetrics(t *testing.T) {
	mon := subsystem.NewSimMonitor(0.01)

	metrics := mon.CurrentMetrics()
	require.Contains(t, metrics, "stability")
	assert.Greater(t, metrics["stability"], 1-0.01, "stability must stay inside the target")

	require.NoError(t, mon.StartPowerMonitoring())
	assert.Equal(t, "monitoring", mon.Status().State)
	require.NoError(t, mon.StopPowerMonitoring())
	assert.Equal(t, "idle", mon.Status().State)
}
