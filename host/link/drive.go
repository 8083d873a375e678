package link

import (
	"fmt"

	"servostep/core"
	"servostep/observability/log"
)

// RemoteDrive is a core.DriveTrain whose mixing runs on the firmware.
type RemoteDrive struct {
	link *Link
	oid  uint8
}

// BindDrive configures an arcade drive over two motor pins.
func (l *Link) BindDrive(leftPin, rightPin uint32, squareInputs bool) (*RemoteDrive, error) {
	square := int32(0)
	if squareInputs {
		square = 1
	}

	l.mu.Lock()
	oid, err := l.allocateOID()
	if err == nil {
		err = l.send("config_drive", []int32{int32(oid), int32(leftPin), int32(rightPin), square})
	}
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to configure drive: %w", err)
	}

	values, err := l.Query("query_drive", []int32{int32(oid)}, "drive_state")
	if err != nil {
		return nil, fmt.Errorf("firmware rejected drive on pins %d/%d: %w", leftPin, rightPin, err)
	}
	if len(values) < 3 || uint32(values[1]) != leftPin || uint32(values[2]) != rightPin {
		return nil, fmt.Errorf("drive oid %d on pins %d/%d: %w", oid, leftPin, rightPin, ErrPinMismatch)
	}

	l.logger.Info("drive bound",
		log.Uint8("oid", oid),
		log.Uint32("left_pin", leftPin),
		log.Uint32("right_pin", rightPin))
	return &RemoteDrive{link: l, oid: oid}, nil
}

// ArcadeDrive sends move and rotate as per-mille ratios.
func (d *RemoteDrive) ArcadeDrive(move, rotate float64) error {
	return d.link.SendCommand("arcade_drive", int32(d.oid), core.RatioToWire(move), core.RatioToWire(rotate))
}

// Outputs reads back the mixed motor speeds.
func (d *RemoteDrive) Outputs() (left, right float64, err error) {
	values, err := d.link.Query("query_drive", []int32{int32(d.oid)}, "drive_state")
	if err != nil {
		return 0, 0, err
	}
	if len(values) < 5 {
		return 0, 0, fmt.Errorf("short drive_state: %v", values)
	}
	return core.RatioFromWire(values[3]), core.RatioFromWire(values[4]), nil
}
