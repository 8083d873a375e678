package link

import (
	"fmt"
	"math"

	"servostep/core"
	"servostep/observability/log"
)

// Servo is a firmware servo addressed by oid.
type Servo struct {
	link *Link
	oid  uint8
	pin  uint32
}

// BindActuator configures a servo on the firmware and confirms it exists.
// It makes a Link usable as a core.ActuatorDriver.
func (l *Link) BindActuator(pin core.ActuatorPin) (core.ActuatorHandle, error) {
	return l.BindServo(uint32(pin))
}

// BindServo is BindActuator returning the concrete handle.
func (l *Link) BindServo(pin uint32) (*Servo, error) {
	l.mu.Lock()
	oid, err := l.allocateOID()
	if err == nil {
		err = l.send("config_servo", []int32{int32(oid), int32(pin)})
	}
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to configure servo on pin %d: %w", pin, err)
	}

	// The firmware only answers query_servo for oids it accepted. An oid
	// left over from an earlier session still answers, with its old pin.
	values, err := l.Query("query_servo", []int32{int32(oid)}, "servo_state")
	if err != nil {
		return nil, fmt.Errorf("firmware rejected servo on pin %d: %w", pin, err)
	}
	if len(values) < 2 || uint32(values[1]) != pin {
		return nil, fmt.Errorf("servo oid %d on pin %d: %w", oid, pin, ErrPinMismatch)
	}

	l.logger.Info("servo bound", log.Uint8("oid", oid), log.Uint32("pin", pin))
	return &Servo{link: l, oid: oid, pin: pin}, nil
}

// CommandAngle sends servo_angle in centidegrees.
func (s *Servo) CommandAngle(angle float64) error {
	if math.IsNaN(angle) {
		return core.ErrNotANumber
	}
	return s.link.SendCommand("servo_angle", int32(s.oid), core.AngleToWire(angle))
}

// Angle reads back the angle the firmware last applied.
func (s *Servo) Angle() (float64, error) {
	values, err := s.link.Query("query_servo", []int32{int32(s.oid)}, "servo_state")
	if err != nil {
		return 0, err
	}
	if len(values) < 3 {
		return 0, fmt.Errorf("short servo_state: %v", values)
	}
	return core.AngleFromWire(values[2]), nil
}

func (s *Servo) OID() uint8 { return s.oid }

func (s *Servo) Pin() uint32 { return s.pin }
