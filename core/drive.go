package core

import (
	"fmt"
	"strings"

	"servostep/observability/log"
)

// Mode is the operating phase of a drivetrain.
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeAutonomous
	ModeTeleOp
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "Disabled"
	case ModeAutonomous:
		return "Autonomous"
	case ModeTeleOp:
		return "TeleOp"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode accepts the mode names case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return ModeDisabled, nil
	case "autonomous", "auto":
		return ModeAutonomous, nil
	case "teleop":
		return ModeTeleOp, nil
	default:
		return ModeDisabled, fmt.Errorf("unknown drive mode %q", s)
	}
}

// DriveTrain moves a differential chassis from arcade-style inputs, each in
// [-1, 1].
type DriveTrain interface {
	ArcadeDrive(move, rotate float64) error
}

// DriveTrainFunc adapts a function to DriveTrain.
type DriveTrainFunc func(move, rotate float64) error

func (f DriveTrainFunc) ArcadeDrive(move, rotate float64) error {
	return f(move, rotate)
}

// Drive gates the idle behaviour of a drivetrain on the operating mode.
// Live drive commands pass through in every mode.
type Drive struct {
	train  DriveTrain
	logger log.Log
	mode   Mode
}

// NewDrive starts in ModeDisabled.
func NewDrive(train DriveTrain, logger log.Log) *Drive {
	if logger == nil {
		logger = log.Nop()
	}
	return &Drive{
		train:  train,
		logger: logger,
		mode:   ModeDisabled,
	}
}

func (d *Drive) SetMode(mode Mode) {
	if mode != d.mode {
		d.logger.Info("drive mode changed",
			log.String("from", d.mode.String()),
			log.String("to", mode.String()))
	}
	d.mode = mode
}

func (d *Drive) Mode() Mode {
	return d.mode
}

// InitDefaultCommand runs the idle behaviour for the current mode: a
// disabled drivetrain is commanded to stop, the other modes do nothing.
func (d *Drive) InitDefaultCommand() error {
	switch d.mode {
	case ModeDisabled:
		return d.ArcadeDrive(0, 0)
	default:
		return nil
	}
}

// ArcadeDrive forwards move and rotate to the drivetrain unchanged.
func (d *Drive) ArcadeDrive(move, rotate float64) error {
	if err := d.train.ArcadeDrive(move, rotate); err != nil {
		return fmt.Errorf("failed to drive (move=%.3f rotate=%.3f): %w", move, rotate, err)
	}
	return nil
}
