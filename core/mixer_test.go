package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixArcade(t *testing.T) {
	testCases := []struct {
		name          string
		move, rotate  float64
		square        bool
		left, right   float64
	}{
		{"stopped", 0, 0, false, 0, 0},
		{"forward", 1, 0, false, 1, 1},
		{"reverse", -1, 0, false, -1, -1},
		{"spin", 0, 1, false, -1, 1},
		{"forward turn", 0.5, 0.5, false, 0, 0.5},
		{"reverse turn", -0.5, -0.5, false, 0, -0.5},
		{"saturated input", 2, 0, false, 1, 1},
		{"squared", 0.5, 0, true, 0.25, 0.25},
		{"squared keeps sign", -0.5, 0, true, -0.25, -0.25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			left, right := MixArcade(tc.move, tc.rotate, tc.square)
			assert.InDelta(t, tc.left, left, 1e-9)
			assert.InDelta(t, tc.right, right, 1e-9)
		})
	}
}

type recordingMotor struct {
	speeds []float64
	err    error
}

func (m *recordingMotor) SetSpeed(speed float64) error {
	if m.err != nil {
		return m.err
	}
	m.speeds = append(m.speeds, speed)
	return nil
}

func TestArcadeMixerDrivesMotors(t *testing.T) {
	left, right := &recordingMotor{}, &recordingMotor{}
	mixer := NewArcadeMixer(left, right, false)

	require.NoError(t, mixer.ArcadeDrive(0.5, 0.5))
	assert.Equal(t, []float64{0}, left.speeds)
	assert.Equal(t, []float64{0.5}, right.speeds)

	l, r := mixer.Outputs()
	assert.Equal(t, 0.0, l)
	assert.Equal(t, 0.5, r)
}

func TestArcadeMixerMotorError(t *testing.T) {
	motorErr := errors.New("esc offline")
	mixer := NewArcadeMixer(&recordingMotor{err: motorErr}, &recordingMotor{}, false)
	assert.ErrorIs(t, mixer.ArcadeDrive(1, 0), motorErr)
}

func TestDriveOverMixer(t *testing.T) {
	pwm := NewSimPWMDriver(nil)
	motors := NewPWMMotorDriver(pwm, DefaultMotorPulseRange(), nil)
	left, err := motors.BindMotor(0)
	require.NoError(t, err)
	right, err := motors.BindMotor(1)
	require.NoError(t, err)

	drive := NewDrive(NewArcadeMixer(left, right, false), nil)
	require.NoError(t, drive.ArcadeDrive(1, 0))
	pulse, _ := pwm.PulseUS(0)
	assert.Equal(t, uint32(2000), pulse)

	require.NoError(t, drive.InitDefaultCommand())
	pulse, _ = pwm.PulseUS(1)
	assert.Equal(t, uint32(1500), pulse)
}
