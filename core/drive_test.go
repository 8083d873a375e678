package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type driveCall struct {
	move, rotate float64
}

type recordingTrain struct {
	calls []driveCall
	err   error
}

func (r *recordingTrain) ArcadeDrive(move, rotate float64) error {
	r.calls = append(r.calls, driveCall{move, rotate})
	return r.err
}

func TestDriveStartsDisabled(t *testing.T) {
	d := NewDrive(&recordingTrain{}, nil)
	assert.Equal(t, ModeDisabled, d.Mode())
}

func TestDriveDefaultCommandStopsOnlyWhenDisabled(t *testing.T) {
	train := &recordingTrain{}
	d := NewDrive(train, nil)

	require.NoError(t, d.InitDefaultCommand())
	assert.Equal(t, []driveCall{{0, 0}}, train.calls)

	for _, mode := range []Mode{ModeAutonomous, ModeTeleOp} {
		d.SetMode(mode)
		require.NoError(t, d.InitDefaultCommand())
		assert.Len(t, train.calls, 1, "mode %s must not command the drivetrain", mode)
	}

	d.SetMode(ModeDisabled)
	require.NoError(t, d.InitDefaultCommand())
	assert.Len(t, train.calls, 2)
}

func TestDriveArcadePassesThroughInEveryMode(t *testing.T) {
	train := &recordingTrain{}
	d := NewDrive(train, nil)

	for _, mode := range []Mode{ModeDisabled, ModeAutonomous, ModeTeleOp} {
		d.SetMode(mode)
		require.NoError(t, d.ArcadeDrive(0.5, -0.25))
	}
	assert.Equal(t, []driveCall{{0.5, -0.25}, {0.5, -0.25}, {0.5, -0.25}}, train.calls)
}

func TestDriveWrapsTrainError(t *testing.T) {
	trainErr := errors.New("motor fault")
	d := NewDrive(&recordingTrain{err: trainErr}, nil)
	assert.ErrorIs(t, d.ArcadeDrive(1, 0), trainErr)
	assert.ErrorIs(t, d.InitDefaultCommand(), trainErr)
}

func TestParseMode(t *testing.T) {
	testCases := map[string]Mode{
		"disabled":   ModeDisabled,
		"Disabled":   ModeDisabled,
		"AUTONOMOUS": ModeAutonomous,
		"auto":       ModeAutonomous,
		" teleop ":   ModeTeleOp,
		"TeleOp":     ModeTeleOp,
	}
	for input, want := range testCases {
		got, err := ParseMode(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseMode("test")
	assert.Error(t, err)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "Disabled", ModeDisabled.String())
	assert.Equal(t, "Autonomous", ModeAutonomous.String())
	assert.Equal(t, "TeleOp", ModeTeleOp.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
