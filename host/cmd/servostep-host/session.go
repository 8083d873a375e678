package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"servostep/config"
	"servostep/core"
	"servostep/host/link"
	"servostep/observability/log"
	"servostep/protocol"
)

var errQuit = errors.New("quit")

// servoEntry is one configured servo: the controller plus the firmware
// handle it commands, kept for read-back.
type servoEntry struct {
	name     string
	actuator *core.BoundedStepActuator
	remote   *link.Servo
}

// session owns every controller. It is only ever called from the owner
// goroutine, so the controllers see a single caller.
type session struct {
	link     *link.Link
	servos   []*servoEntry
	selected int
	jog      int
	target   *float64
	updateHz float64

	drive       *core.Drive
	remoteDrive *link.RemoteDrive

	out    io.Writer
	logger log.Log
}

// newSession binds every configured servo and the optional drive on the
// firmware behind l. Outputs left configured by an earlier host run are
// released first so oids start from a clean table.
func newSession(l *link.Link, cfg *config.Config, logger log.Log, out io.Writer) (*session, error) {
	s := &session{
		link:     l,
		updateHz: cfg.UpdateHz,
		out:      out,
		logger:   logger,
	}

	if err := l.Reset(); err != nil {
		return nil, fmt.Errorf("failed to reset firmware: %w", err)
	}

	for _, sc := range cfg.Servos {
		pin, err := l.ResolvePin(string(sc.Pin))
		if err != nil {
			return nil, fmt.Errorf("servo %s: %w", sc.Name, err)
		}
		remote, err := l.BindServo(pin)
		if err != nil {
			return nil, fmt.Errorf("servo %s: %w", sc.Name, err)
		}
		opts := append(sc.Options(), core.WithLogger(logger.With(log.String("servo", sc.Name))))
		s.servos = append(s.servos, &servoEntry{
			name:     sc.Name,
			actuator: core.NewWithHandle(remote, core.ActuatorPin(pin), sc.ActuatorConfig(cfg.UpdateHz), opts...),
			remote:   remote,
		})
	}

	if dc := cfg.Drive; dc != nil {
		left, err := l.ResolvePin(string(dc.LeftPin))
		if err != nil {
			return nil, fmt.Errorf("drive left: %w", err)
		}
		right, err := l.ResolvePin(string(dc.RightPin))
		if err != nil {
			return nil, fmt.Errorf("drive right: %w", err)
		}
		mode, err := core.ParseMode(dc.Mode)
		if err != nil {
			return nil, err
		}
		s.remoteDrive, err = l.BindDrive(left, right, dc.SquareInputs)
		if err != nil {
			return nil, err
		}
		s.drive = core.NewDrive(s.remoteDrive, logger)
		s.drive.SetMode(mode)
		if err := s.drive.InitDefaultCommand(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) current() *servoEntry {
	return s.servos[s.selected]
}

// tick is the periodic caller that moves a jogging servo one step.
func (s *session) tick() {
	if s.target != nil {
		s.stepTowardTarget()
		return
	}
	switch {
	case s.jog > 0:
		if s.current().actuator.StepForward() != core.InRange {
			s.jog = 0
		}
	case s.jog < 0:
		if s.current().actuator.StepBackward() != core.InRange {
			s.jog = 0
		}
	}
}

// execute runs one console command.
func (s *session) execute(args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		printHelp(s.out)

	case "servos":
		for i, e := range s.servos {
			marker := " "
			if i == s.selected {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %-12s pin=%-3d pos=%.2f\n", marker, e.name, e.actuator.Pin(), e.actuator.Position())
		}

	case "select":
		if len(args) != 1 {
			return errors.New("usage: select <name>")
		}
		for i, e := range s.servos {
			if e.name == args[0] {
				s.selected = i
				s.jog = 0
				s.target = nil
				return nil
			}
		}
		return fmt.Errorf("no servo named %q", args[0])

	case "pos", "angle":
		angle, err := floatArg(args, 0, "pos <degrees>")
		if err != nil {
			return err
		}
		s.report(s.current().actuator.SetPosition(angle))

	case "fwd", "bwd":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			n = v
		}
		var result core.ClampResult
		for i := 0; i < n; i++ {
			if cmd == "fwd" {
				result = s.current().actuator.StepForward()
			} else {
				result = s.current().actuator.StepBackward()
			}
		}
		s.report(result)

	case "goto":
		target, err := floatArg(args, 0, "goto <degrees>")
		if err != nil {
			return err
		}
		if math.IsNaN(target) {
			return core.ErrNotANumber
		}
		a := s.current().actuator
		ticks := core.StepsToReach(a.Position(), target, a.Step())
		s.jog = 0
		s.target = &target
		fmt.Fprintf(s.out, "moving to %.2f in %d ticks (%v)\n", target, ticks,
			time.Duration(ticks)*core.UpdateInterval(s.updateHz))

	case "jog":
		if len(args) != 1 {
			return errors.New("usage: jog fwd|bwd|stop")
		}
		s.target = nil
		switch args[0] {
		case "fwd":
			s.jog = 1
		case "bwd":
			s.jog = -1
		case "stop":
			s.jog = 0
		default:
			return errors.New("usage: jog fwd|bwd|stop")
		}

	case "min":
		angle, err := floatArg(args, 0, "min <degrees>")
		if err != nil {
			return err
		}
		s.current().actuator.SetMin(angle)

	case "max":
		angle, err := floatArg(args, 0, "max <degrees>")
		if err != nil {
			return err
		}
		s.current().actuator.SetMax(angle)

	case "step":
		step, err := floatArg(args, 0, "step <degrees>")
		if err != nil {
			return err
		}
		s.current().actuator.SetStep(step)
		fmt.Fprintf(s.out, "step %.4f\n", s.current().actuator.Step())

	case "speed":
		speed, err := floatArg(args, 0, "speed <degrees/s>")
		if err != nil {
			return err
		}
		s.current().actuator.SetStepFromUpdateFrequency(s.updateHz, speed)
		fmt.Fprintf(s.out, "step %.4f at %.0fHz\n", s.current().actuator.Step(), s.updateHz)

	case "mode":
		if s.drive == nil {
			return errors.New("no drive configured")
		}
		if len(args) == 0 {
			fmt.Fprintln(s.out, s.drive.Mode())
			return nil
		}
		mode, err := core.ParseMode(args[0])
		if err != nil {
			return err
		}
		s.drive.SetMode(mode)
		return s.drive.InitDefaultCommand()

	case "drive":
		if s.drive == nil {
			return errors.New("no drive configured")
		}
		move, err := floatArg(args, 0, "drive <move> <rotate>")
		if err != nil {
			return err
		}
		rotate, err := floatArg(args, 1, "drive <move> <rotate>")
		if err != nil {
			return err
		}
		return s.drive.ArcadeDrive(move, rotate)

	case "status":
		return s.status()

	case "dict":
		s.printDictionary()

	case "raw":
		raw := s.link.DictionaryRaw()
		data, err := protocol.InflateDictionary(raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Raw dictionary data (%d bytes, %d inflated):\n%s\n", len(raw), len(data), data)

	default:
		return fmt.Errorf("unknown command %q (type 'help' for available commands)", cmd)
	}
	return nil
}

func (s *session) stepTowardTarget() {
	a := s.current().actuator
	target := *s.target
	remaining := target - a.Position()

	var result core.ClampResult
	switch {
	case math.Abs(remaining) <= a.Step():
		result = a.SetPosition(target)
		s.target = nil
	case remaining > 0:
		result = a.StepForward()
	default:
		result = a.StepBackward()
	}
	if result != core.InRange {
		s.target = nil
	}
}

func (s *session) report(result core.ClampResult) {
	e := s.current()
	if result == core.InRange {
		fmt.Fprintf(s.out, "%s at %.2f\n", e.name, e.actuator.Position())
		return
	}
	fmt.Fprintf(s.out, "%s at %.2f (%s)\n", e.name, e.actuator.Position(), result)
}

func (s *session) status() error {
	for _, e := range s.servos {
		st := e.actuator.State()
		fmt.Fprintf(s.out, "%s: pos=%.2f limits=[%.2f, %.2f] step=%.4f clamp_commands=%t",
			e.name, st.Position, st.Limits.Min, st.Limits.Max, st.Step, e.actuator.CommandOnClamp())
		if e.remote != nil {
			applied, err := e.remote.Angle()
			if err != nil {
				fmt.Fprintf(s.out, " firmware=error(%v)\n", err)
				continue
			}
			fmt.Fprintf(s.out, " firmware=%.2f", applied)
		}
		fmt.Fprintln(s.out)
	}

	if s.drive != nil {
		fmt.Fprintf(s.out, "drive: mode=%s", s.drive.Mode())
		if s.remoteDrive != nil {
			left, right, err := s.remoteDrive.Outputs()
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, " left=%.3f right=%.3f", left, right)
		}
		fmt.Fprintln(s.out)
	}
	return nil
}

func (s *session) printDictionary() {
	dict := s.link.Dictionary()
	if dict == nil {
		fmt.Fprintln(s.out, "No dictionary loaded")
		return
	}
	fmt.Fprintf(s.out, "Version: %s\n", dict.Version)

	keys := make([]string, 0, len(dict.Config))
	for k := range dict.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(s.out, "  %s = %s\n", k, dict.Config[k])
	}

	formats := make([]string, 0, len(dict.Commands))
	for f := range dict.Commands {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return dict.Commands[formats[i]] < dict.Commands[formats[j]] })
	for _, f := range formats {
		fmt.Fprintf(s.out, "  [%d] %s\n", dict.Commands[f], f)
	}
}

func floatArg(args []string, i int, usage string) (float64, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return v, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Available commands:
  servos                 - List servos, * marks the selected one
  select <name>          - Select the servo the commands below act on
  pos <deg>              - Move to an absolute angle (clamped to the limits)
  fwd [n] / bwd [n]      - Step forward or backward n times
  goto <deg>             - Step toward an angle once per update tick
  jog fwd|bwd|stop       - Step once per update tick until stopped or clamped
  min <deg> / max <deg>  - Change a limit; the position is re-clamped
  step <deg>             - Set the step size
  speed <deg/s>          - Set the step size from a speed at the update rate
  mode [name]            - Show or set the drive mode (disabled, autonomous, teleop)
  drive <move> <rotate>  - Arcade drive, both in [-1, 1]
  status                 - Show controller and firmware state
  dict                   - Print the firmware dictionary
  raw                    - Print the raw dictionary data
  quit/exit/q            - Exit the program`)
}
