package core

// ActuatorPin identifies the output an actuator is bound to. Its meaning
// (GPIO number, PWM channel, remote OID slot) belongs to the driver.
type ActuatorPin uint32

// ActuatorHandle commands a physical position actuator.
type ActuatorHandle interface {
	// CommandAngle instructs the device to move to angle degrees.
	CommandAngle(angle float64) error
}

// ActuatorDriver binds pins to actuator handles.
type ActuatorDriver interface {
	BindActuator(pin ActuatorPin) (ActuatorHandle, error)
}

// ActuatorHandleFunc adapts a function to ActuatorHandle.
type ActuatorHandleFunc func(angle float64) error

func (f ActuatorHandleFunc) CommandAngle(angle float64) error {
	return f(angle)
}

// ActuatorDriverFunc adapts a function to ActuatorDriver.
type ActuatorDriverFunc func(pin ActuatorPin) (ActuatorHandle, error)

func (f ActuatorDriverFunc) BindActuator(pin ActuatorPin) (ActuatorHandle, error) {
	return f(pin)
}
