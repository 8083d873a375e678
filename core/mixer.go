package core

import "math"

// MixArcade converts arcade inputs into left/right outputs. Inputs are
// limited to [-1, 1]; squaring keeps the sign and softens small inputs.
func MixArcade(move, rotate float64, squareInputs bool) (left, right float64) {
	move = limitUnit(move)
	rotate = limitUnit(rotate)

	if squareInputs {
		move = math.Copysign(move*move, move)
		rotate = math.Copysign(rotate*rotate, rotate)
	}

	if move > 0 {
		if rotate > 0 {
			left = move - rotate
			right = math.Max(move, rotate)
		} else {
			left = math.Max(move, -rotate)
			right = move + rotate
		}
	} else {
		if rotate > 0 {
			left = -math.Max(-move, rotate)
			right = move + rotate
		} else {
			left = move - rotate
			right = -math.Max(-move, -rotate)
		}
	}
	return limitUnit(left), limitUnit(right)
}

func limitUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// ArcadeMixer is a DriveTrain over two motor outputs.
type ArcadeMixer struct {
	left, right  MotorOutput
	squareInputs bool

	leftOut, rightOut float64
}

func NewArcadeMixer(left, right MotorOutput, squareInputs bool) *ArcadeMixer {
	return &ArcadeMixer{left: left, right: right, squareInputs: squareInputs}
}

func (m *ArcadeMixer) ArcadeDrive(move, rotate float64) error {
	left, right := MixArcade(move, rotate, m.squareInputs)
	if err := m.left.SetSpeed(left); err != nil {
		return err
	}
	if err := m.right.SetSpeed(right); err != nil {
		return err
	}
	m.leftOut, m.rightOut = left, right
	return nil
}

// Outputs returns the last speeds written to the motors.
func (m *ArcadeMixer) Outputs() (left, right float64) {
	return m.leftOut, m.rightOut
}
