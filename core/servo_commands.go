package core

import (
	"errors"
	"fmt"
	"math"

	"servostep/observability/log"
	"servostep/protocol"
)

// Fixed-point scales used on the wire: angles travel as centidegrees and
// drive ratios as per-mille.
const (
	AngleScale = 100
	RatioScale = 1000
)

var (
	ErrUnknownOID        = errors.New("unknown oid")
	ErrOIDInUse          = errors.New("oid already configured")
	ErrDriveNotSupported = errors.New("firmware has no motor driver")
)

func toFixed(v float64, scale float64) int32 {
	v = math.Round(v * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}

// AngleToWire converts degrees to centidegrees.
func AngleToWire(angle float64) int32 { return toFixed(angle, AngleScale) }

func AngleFromWire(v int32) float64 { return float64(v) / AngleScale }

// RatioToWire converts a [-1, 1] ratio to per-mille.
func RatioToWire(r float64) int32 { return toFixed(r, RatioScale) }

func RatioFromWire(v int32) float64 { return float64(v) / RatioScale }

type firmwareServo struct {
	pin    ActuatorPin
	handle ActuatorHandle
	angle  float64
}

type firmwareDrive struct {
	leftPin, rightPin ActuatorPin
	left, right       MotorOutput
	mixer             *ArcadeMixer
}

func (f *Firmware) registerServoCommands() {
	f.registry.Register("config_servo", "oid=%c pin=%u", f.handleConfigServo)
	f.registry.Register("servo_angle", "oid=%c angle=%i", f.handleServoAngle)
	f.registry.Register("query_servo", "oid=%c", f.handleQueryServo)
	f.registry.RegisterResponse("servo_state", "oid=%c pin=%u angle=%i")
}

func (f *Firmware) registerDriveCommands() {
	f.registry.Register("config_drive", "oid=%c left_pin=%u right_pin=%u square=%c", f.handleConfigDrive)
	f.registry.Register("arcade_drive", "oid=%c move=%i rotate=%i", f.handleArcadeDrive)
	f.registry.Register("query_drive", "oid=%c", f.handleQueryDrive)
	f.registry.RegisterResponse("drive_state", "oid=%c left_pin=%u right_pin=%u left=%i right=%i")
}

func decodeOID(data *[]byte) (uint8, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, err
	}
	return uint8(oid), nil
}

// handleConfigServo binds a servo output.
// Format: config_servo oid=%c pin=%u
func (f *Firmware) handleConfigServo(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if _, exists := f.servos[oid]; exists {
		return fmt.Errorf("servo %d: %w", oid, ErrOIDInUse)
	}

	handle, err := f.actuators.BindActuator(ActuatorPin(pin))
	if err != nil {
		return fmt.Errorf("failed to bind servo %d on pin %d: %w", oid, pin, err)
	}
	f.servos[oid] = &firmwareServo{pin: ActuatorPin(pin), handle: handle, angle: math.NaN()}
	f.logger.Info("servo configured", log.Uint8("oid", oid), log.Uint32("pin", pin))
	return nil
}

// handleServoAngle moves a configured servo.
// Format: servo_angle oid=%c angle=%i
func (f *Firmware) handleServoAngle(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	raw, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	s, ok := f.servos[oid]
	if !ok {
		return fmt.Errorf("servo %d: %w", oid, ErrUnknownOID)
	}

	angle := AngleFromWire(raw)
	if err := s.handle.CommandAngle(angle); err != nil {
		return fmt.Errorf("servo %d: %w", oid, err)
	}
	s.angle = angle
	return nil
}

// handleQueryServo reports the bound pin and the last commanded angle.
// Format: query_servo oid=%c
func (f *Firmware) handleQueryServo(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	s, ok := f.servos[oid]
	if !ok {
		return fmt.Errorf("servo %d: %w", oid, ErrUnknownOID)
	}
	return f.SendResponse("servo_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(s.pin))
		protocol.EncodeVLQInt(output, AngleToWire(s.angle))
	})
}

// handleConfigDrive binds two motors behind an arcade mixer.
// Format: config_drive oid=%c left_pin=%u right_pin=%u square=%c
func (f *Firmware) handleConfigDrive(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	leftPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	rightPin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	square, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if f.motors == nil {
		return ErrDriveNotSupported
	}
	if _, exists := f.drives[oid]; exists {
		return fmt.Errorf("drive %d: %w", oid, ErrOIDInUse)
	}

	left, err := f.motors.BindMotor(ActuatorPin(leftPin))
	if err != nil {
		return fmt.Errorf("failed to bind left motor on pin %d: %w", leftPin, err)
	}
	right, err := f.motors.BindMotor(ActuatorPin(rightPin))
	if err != nil {
		return fmt.Errorf("failed to bind right motor on pin %d: %w", rightPin, err)
	}
	f.drives[oid] = &firmwareDrive{
		leftPin:  ActuatorPin(leftPin),
		rightPin: ActuatorPin(rightPin),
		left:     left,
		right:    right,
		mixer:    NewArcadeMixer(left, right, square != 0),
	}
	f.logger.Info("drive configured",
		log.Uint8("oid", oid),
		log.Uint32("left_pin", leftPin),
		log.Uint32("right_pin", rightPin),
		log.Bool("square", square != 0))
	return nil
}

// handleArcadeDrive mixes move/rotate onto the motors.
// Format: arcade_drive oid=%c move=%i rotate=%i
func (f *Firmware) handleArcadeDrive(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	move, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	rotate, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	d, ok := f.drives[oid]
	if !ok {
		return fmt.Errorf("drive %d: %w", oid, ErrUnknownOID)
	}
	return d.mixer.ArcadeDrive(RatioFromWire(move), RatioFromWire(rotate))
}

// handleQueryDrive reports the motor pins and the mixed outputs.
// Format: query_drive oid=%c
func (f *Firmware) handleQueryDrive(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	d, ok := f.drives[oid]
	if !ok {
		return fmt.Errorf("drive %d: %w", oid, ErrUnknownOID)
	}
	left, right := d.mixer.Outputs()
	return f.SendResponse("drive_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(d.leftPin))
		protocol.EncodeVLQUint(output, uint32(d.rightPin))
		protocol.EncodeVLQInt(output, RatioToWire(left))
		protocol.EncodeVLQInt(output, RatioToWire(right))
	})
}
