package core

import (
	"fmt"
	"strconv"

	"servostep/observability/log"
	"servostep/protocol"
)

// identifyChunkMax bounds identify_response payloads so a frame never
// exceeds protocol.MessageLengthMax.
const identifyChunkMax = 40

// Firmware joins the command registry, the data dictionary and the MCU-side
// transport. It is driven from a single main loop through Receive.
type Firmware struct {
	registry   *CommandRegistry
	dictionary *Dictionary
	transport  *protocol.Transport
	logger     log.Log

	actuators ActuatorDriver
	motors    MotorDriver
	servos    map[uint8]*firmwareServo
	drives    map[uint8]*firmwareDrive
}

// FirmwareOption customizes a Firmware.
type FirmwareOption func(*Firmware)

func WithFirmwareLogger(logger log.Log) FirmwareOption {
	return func(f *Firmware) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMotorDriver enables the drive commands.
func WithMotorDriver(motors MotorDriver) FirmwareOption {
	return func(f *Firmware) {
		f.motors = motors
	}
}

// WithConstant publishes an extra dictionary constant.
func WithConstant(name string, value any) FirmwareOption {
	return func(f *Firmware) {
		f.dictionary.AddConstant(name, value)
	}
}

// WithEnumeration publishes a dictionary enumeration, typically pin names.
func WithEnumeration(name string, values []string) FirmwareOption {
	return func(f *Firmware) {
		f.dictionary.AddEnumeration(name, values)
	}
}

// NewFirmware registers every command and builds the dictionary. Responses
// and ACKs are written to output.
func NewFirmware(output protocol.OutputBuffer, actuators ActuatorDriver, opts ...FirmwareOption) (*Firmware, error) {
	registry := NewCommandRegistry()
	f := &Firmware{
		registry:   registry,
		dictionary: NewDictionary(registry),
		logger:     log.Nop(),
		actuators:  actuators,
		servos:     make(map[uint8]*firmwareServo),
		drives:     make(map[uint8]*firmwareDrive),
	}
	f.transport = protocol.NewTransport(output, f.dispatch)
	f.transport.SetErrorCallback(f.commandFailed)
	f.transport.SetResetCallback(func() {
		f.logger.Info("host restarted sequence")
	})

	for _, opt := range opts {
		opt(f)
	}

	f.registerCommands()
	f.dictionary.AddConstant("SERVO_PERIOD_US", ServoPeriodUS)
	f.dictionary.AddConstant("ANGLE_SCALE", AngleScale)
	f.dictionary.AddConstant("RATIO_SCALE", RatioScale)
	if err := f.dictionary.BuildDictionary(); err != nil {
		return nil, fmt.Errorf("failed to build dictionary: %w", err)
	}
	return f, nil
}

func (f *Firmware) registerCommands() {
	// identify_response and identify must keep IDs 0 and 1, the host
	// bootstraps with them before it has a dictionary.
	f.registry.RegisterResponse("identify_response", "offset=%u data=%*s")
	f.registry.Register("identify", "offset=%u count=%c", f.handleIdentify)

	f.registry.Register("config_reset", "", f.handleConfigReset)
	f.registerServoCommands()
	f.registerDriveCommands()
}

// Receive processes every complete frame in input.
func (f *Firmware) Receive(input protocol.InputBuffer) {
	f.transport.Receive(input)
}

// SendResponse encodes a registered response by name.
func (f *Firmware) SendResponse(name string, args func(output protocol.OutputBuffer)) error {
	cmd, ok := f.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown response %q", name)
	}
	return f.transport.SendCommand(cmd.ID, args)
}

func (f *Firmware) Transport() *protocol.Transport {
	return f.transport
}

func (f *Firmware) Registry() *CommandRegistry {
	return f.registry
}

func (f *Firmware) Dictionary() *Dictionary {
	return f.dictionary
}

func (f *Firmware) dispatch(cmdID uint16, data *[]byte) error {
	if cmd, ok := f.registry.GetCommand(cmdID); ok {
		f.logger.Debug("dispatch", log.String("command", cmd.Name))
	}
	return f.registry.Dispatch(cmdID, data)
}

func (f *Firmware) commandFailed(cmdID uint16, err error) {
	name := strconv.Itoa(int(cmdID))
	if cmd, ok := f.registry.GetCommand(cmdID); ok {
		name = cmd.Name
	}
	f.logger.Error("command failed", log.String("command", name), log.Error(err))
}

// handleIdentify returns chunks of the data dictionary
func (f *Firmware) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > identifyChunkMax {
		count = identifyChunkMax
	}

	chunk := f.dictionary.GetChunk(offset, uint8(count))
	return f.SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
}

// handleConfigReset releases every configured output.
func (f *Firmware) handleConfigReset(data *[]byte) error {
	f.Reset()
	return nil
}

// Reset releases every configured servo and drive.
func (f *Firmware) Reset() {
	for oid, s := range f.servos {
		if r, ok := s.handle.(releaser); ok {
			if err := r.Release(); err != nil {
				f.logger.Warn("failed to release servo", log.Uint8("oid", oid), log.Error(err))
			}
		}
	}
	for oid, d := range f.drives {
		for _, m := range []MotorOutput{d.left, d.right} {
			if r, ok := m.(releaser); ok {
				if err := r.Release(); err != nil {
					f.logger.Warn("failed to release motor", log.Uint8("oid", oid), log.Error(err))
				}
			}
		}
	}
	f.servos = make(map[uint8]*firmwareServo)
	f.drives = make(map[uint8]*firmwareDrive)
	f.logger.Info("configuration reset")
}

type releaser interface {
	Release() error
}
