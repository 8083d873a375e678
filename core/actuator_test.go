package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"servostep/observability/log"
)

// recordingHandle remembers every angle it was commanded with.
type recordingHandle struct {
	angles []float64
	err    error
}

func (h *recordingHandle) CommandAngle(angle float64) error {
	h.angles = append(h.angles, angle)
	return h.err
}

func (h *recordingHandle) last() float64 {
	if len(h.angles) == 0 {
		return math.NaN()
	}
	return h.angles[len(h.angles)-1]
}

func newTestActuator(t *testing.T, cfg Config, opts ...Option) (*BoundedStepActuator, *recordingHandle, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	handle := &recordingHandle{}
	opts = append([]Option{WithLogger(log.NewWithCore(core, log.LevelWarn))}, opts...)
	return NewWithHandle(handle, 3, cfg, opts...), handle, logs
}

func TestNewBindsThroughDriver(t *testing.T) {
	handle := &recordingHandle{}
	var boundPin ActuatorPin
	driver := ActuatorDriverFunc(func(pin ActuatorPin) (ActuatorHandle, error) {
		boundPin = pin
		return handle, nil
	})

	a, err := NewDefault(driver, 9)
	require.NoError(t, err)

	assert.Equal(t, ActuatorPin(9), boundPin)
	assert.Equal(t, ActuatorPin(9), a.Pin())
	assert.Equal(t, Limits{Min: -5, Max: 80}, a.Limits())
	assert.Equal(t, 0.6, a.Step())
	assert.Equal(t, 0.0, a.Position())
	assert.Equal(t, []float64{0}, handle.angles)
	assert.True(t, a.CommandOnClamp())
}

func TestNewBindError(t *testing.T) {
	bindErr := errors.New("pin busy")
	driver := ActuatorDriverFunc(func(pin ActuatorPin) (ActuatorHandle, error) {
		return nil, bindErr
	})

	a, err := New(driver, 4, DefaultConfig())
	assert.Nil(t, a)
	assert.ErrorIs(t, err, bindErr)
}

func TestStartPositionIsClamped(t *testing.T) {
	a, handle, _ := newTestActuator(t, Config{Min: 10, Max: 90, Start: 120, Step: 1})
	assert.Equal(t, 90.0, a.Position())
	assert.Equal(t, []float64{90}, handle.angles)
}

func TestSetPositionInRange(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig())

	for _, angle := range []float64{-5, -4.99, 0, 12.5, 45, 79.999, 80} {
		result := a.SetPosition(angle)
		assert.Equal(t, InRange, result, "angle %v", angle)
		assert.Equal(t, angle, a.Position())
		assert.Equal(t, angle, handle.last())
	}
}

func TestSetPositionClampsHigh(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig())

	for _, angle := range []float64{80.0001, 95, 180, math.Inf(1)} {
		assert.Equal(t, ClampedHigh, a.SetPosition(angle))
		assert.Equal(t, 80.0, a.Position())
		assert.Equal(t, 80.0, handle.last())
	}
}

func TestSetPositionClampsLowToMinimum(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig())

	for _, angle := range []float64{-5.0001, -30, math.Inf(-1)} {
		assert.Equal(t, ClampedLow, a.SetPosition(angle))
		assert.Equal(t, -5.0, a.Position())
		assert.Equal(t, -5.0, handle.last())
	}
}

func TestCommandOnClampDisabled(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig(), WithCommandOnClamp(false))
	require.Equal(t, []float64{0}, handle.angles)

	assert.Equal(t, ClampedHigh, a.SetPosition(100))
	assert.Equal(t, 80.0, a.Position())
	assert.Equal(t, []float64{0}, handle.angles, "clamped request must not reach the device")

	assert.Equal(t, ClampedLow, a.SetPosition(-100))
	assert.Equal(t, -5.0, a.Position())
	assert.Equal(t, []float64{0}, handle.angles)

	a.SetPosition(20)
	assert.Equal(t, []float64{0, 20}, handle.angles)
}

func TestSetPositionNaNIsIgnored(t *testing.T) {
	a, handle, logs := newTestActuator(t, DefaultConfig())
	a.SetPosition(30)

	assert.Equal(t, Rejected, a.SetPosition(math.NaN()))
	assert.Equal(t, 30.0, a.Position())
	assert.Equal(t, []float64{0, 30}, handle.angles)
	assert.Equal(t, 1, logs.FilterMessage("ignoring NaN servo position").Len())
}

func TestSetAngleAlias(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig())
	assert.Equal(t, InRange, a.SetAngle(33))
	assert.Equal(t, 33.0, a.Position())
	assert.Equal(t, 33.0, handle.last())
}

func TestSetStepInvalidRevertsToDefault(t *testing.T) {
	for _, step := range []float64{0, -1, math.NaN()} {
		a, _, logs := newTestActuator(t, Config{Min: 0, Max: 90, Start: 0, Step: 1})
		a.SetStep(step)

		assert.Equal(t, DefaultStep, a.Step(), "step %v", step)
		errorsLogged := logs.FilterLevelExact(zapcore.ErrorLevel)
		require.Equal(t, 1, errorsLogged.Len(), "step %v", step)
		assert.Equal(t, DefaultStep, errorsLogged.All()[0].ContextMap()["default"])
	}
}

func TestSetStepSuspiciousIsKept(t *testing.T) {
	a, _, logs := newTestActuator(t, Config{Min: 0, Max: 90, Start: 0, Step: 1})

	a.SetStep(2.9999)
	assert.Equal(t, 2.9999, a.Step())
	assert.Equal(t, 0, logs.Len())

	a.SetStep(3.5)
	assert.Equal(t, 3.5, a.Step())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, 3.5, logs.All()[0].ContextMap()["value"])

	a.SetStep(0.005)
	assert.Equal(t, 0.005, a.Step())
	assert.Equal(t, 2, logs.Len())
}

func TestSuspiciousLimitsWarn(t *testing.T) {
	a, _, logs := newTestActuator(t, Config{Min: 0, Max: 180, Start: 0, Step: 1})
	assert.Equal(t, 0, logs.Len())

	a.SetMin(-1)
	a.SetMax(181)
	assert.Equal(t, 1, logs.FilterMessage("setting servo minimum to strange value").Len())
	assert.Equal(t, 1, logs.FilterMessage("setting servo maximum to strange value").Len())
	assert.Equal(t, Limits{Min: -1, Max: 181}, a.Limits())
}

func TestDefaultConstructionWarnsOnNegativeMin(t *testing.T) {
	_, _, logs := newTestActuator(t, DefaultConfig())
	assert.Equal(t, 1, logs.FilterMessage("setting servo minimum to strange value").Len())
}

func TestSetMaxReclampsCurrentPosition(t *testing.T) {
	a, handle, _ := newTestActuator(t, Config{Min: 0, Max: 90, Start: 50, Step: 1})

	a.SetMax(30)
	assert.Equal(t, 30.0, a.Position())
	assert.Equal(t, 30.0, handle.last())
}

func TestSetMinReclampsCurrentPosition(t *testing.T) {
	a, handle, _ := newTestActuator(t, Config{Min: 0, Max: 90, Start: 10, Step: 1})

	a.SetMin(25)
	assert.Equal(t, 25.0, a.Position())
	assert.Equal(t, 25.0, handle.last())

	// Widening the window re-applies the same position.
	a.SetMin(0)
	assert.Equal(t, 25.0, a.Position())
	assert.Equal(t, []float64{10, 25, 25}, handle.angles)
}

func TestStepForwardSaturatesAtMax(t *testing.T) {
	a, handle, _ := newTestActuator(t, DefaultConfig())

	for i := 0; i < 134; i++ {
		a.StepForward()
	}
	assert.Equal(t, 80.0, a.Position())
	assert.Equal(t, 80.0, handle.last())
}

func TestStepForwardAccumulates(t *testing.T) {
	a, _, _ := newTestActuator(t, Config{Min: 0, Max: 90, Start: 10, Step: 0.5})

	const k = 37
	for i := 0; i < k; i++ {
		assert.Equal(t, InRange, a.StepForward())
	}
	assert.InDelta(t, math.Min(10+k*0.5, 90), a.Position(), 1e-9)
}

func TestStepBackwardSaturatesAtMin(t *testing.T) {
	a, handle, _ := newTestActuator(t, Config{Min: 0, Max: 90, Start: 2, Step: 0.75})

	a.StepBackward()
	a.StepBackward()
	assert.InDelta(t, 0.5, a.Position(), 1e-9)

	assert.Equal(t, ClampedLow, a.StepBackward())
	assert.Equal(t, 0.0, a.Position())
	assert.Equal(t, 0.0, handle.last())
}

func TestStepFromUpdateRates(t *testing.T) {
	a, _, _ := newTestActuator(t, DefaultConfig())

	a.SetStepFromUpdateFrequency(200, 15)
	assert.InDelta(t, 15.0/200, a.Step(), 1e-12)

	a.SetStepFromUpdateDelay(0.005, 15)
	assert.InDelta(t, 0.075, a.Step(), 1e-12)

	a.SetStepFromInterval(20*time.Millisecond, 60)
	assert.InDelta(t, 1.2, a.Step(), 1e-12)

	a.SetStepFromUpdateFrequency(0, 15)
	assert.Equal(t, DefaultStep, a.Step(), "division by zero falls back to the default")
}

func TestCommandErrorIsLoggedNotFatal(t *testing.T) {
	a, handle, logs := newTestActuator(t, Config{Min: 0, Max: 90, Start: 0, Step: 1})
	handle.err = errors.New("link down")

	assert.Equal(t, InRange, a.SetPosition(45))
	assert.Equal(t, 45.0, a.Position())
	assert.Equal(t, 1, logs.FilterMessage("servo command failed").Len())
}

func TestInvertedLimitsResolveToMax(t *testing.T) {
	a, _, _ := newTestActuator(t, Config{Min: 50, Max: 40, Start: 45, Step: 1})
	assert.Equal(t, 40.0, a.Position())

	assert.Equal(t, ClampedHigh, a.SetPosition(45))
	assert.Equal(t, 40.0, a.Position())
}

func TestState(t *testing.T) {
	a, _, _ := newTestActuator(t, Config{Min: 0, Max: 90, Start: 12, Step: 0.25})
	assert.Equal(t, State{Pin: 3, Position: 12, Limits: Limits{Min: 0, Max: 90}, Step: 0.25}, a.State())
}
