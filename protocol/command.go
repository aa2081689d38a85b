package protocol

import (
	"fmt"
	"strings"
)

// Direction is the vehicle motion direction. Values are the wire codes.
type Direction uint8

const (
	Stop Direction = iota
	Forward
	Backward
	Left
	Right
	RotateLeft
	RotateRight
)

var directionNames = [...]string{
	Stop:        "stop",
	Forward:     "forward",
	Backward:    "backward",
	Left:        "left",
	Right:       "right",
	RotateLeft:  "rotate_left",
	RotateRight: "rotate_right",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Valid reports whether d is a known wire code.
func (d Direction) Valid() bool {
	return int(d) < len(directionNames)
}

// ParseDirection maps the legacy direction names ("forward",
// "rotate_left", ...) onto a Direction. Matching ignores case; "back"
// and "backwards" are accepted for Backward.
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "back", "backwards":
		return Backward, nil
	}
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return Stop, fmt.Errorf("unknown direction %q", s)
}

// Action is the storage slot action. Values are the wire codes.
type Action uint8

const (
	Close Action = iota
	Open
)

func (a Action) String() string {
	switch a {
	case Close:
		return "close"
	case Open:
		return "open"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// ParseAction maps "open" or "close" onto an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return Open, nil
	case "close":
		return Close, nil
	}
	return Close, fmt.Errorf("unknown action %q", s)
}

// Command is one request to the peer. The set of implementations is
// closed: VehicleMove, StorageControl and StatusQuery.
type Command interface {
	// Type returns the wire discriminator.
	Type() string

	isCommand()
}

// VehicleMove drives the vehicle. At most one of DurationMS, DistanceMM
// and UntilObstacle is encoded; distance takes precedence over
// until-obstacle, which takes precedence over duration.
type VehicleMove struct {
	Direction     Direction
	Speed         int
	DurationMS    *uint32
	DistanceMM    *uint32
	UntilObstacle bool
}

// StorageControl opens or closes one storage slot.
type StorageControl struct {
	Slot   int
	Action Action
}

// StatusQuery asks the peer for its full status.
type StatusQuery struct{}

func (VehicleMove) Type() string    { return TypeVehicle }
func (StorageControl) Type() string { return TypeStorage }
func (StatusQuery) Type() string    { return TypeStatus }

func (VehicleMove) isCommand()    {}
func (StorageControl) isCommand() {}
func (StatusQuery) isCommand()    {}

// MoveForTime returns a time-bounded move.
func MoveForTime(dir Direction, speed int, durationMS uint32) VehicleMove {
	return VehicleMove{Direction: dir, Speed: speed, DurationMS: &durationMS}
}

// MoveForDistance returns a distance-bounded move.
func MoveForDistance(dir Direction, speed int, distanceMM uint32) VehicleMove {
	return VehicleMove{Direction: dir, Speed: speed, DistanceMM: &distanceMM}
}

// MoveUntilObstacle returns a move the peer ends on its own obstacle
// detection.
func MoveUntilObstacle(dir Direction, speed int) VehicleMove {
	return VehicleMove{Direction: dir, Speed: speed, UntilObstacle: true}
}

// StopMove returns the stop command.
func StopMove() VehicleMove {
	return VehicleMove{Direction: Stop}
}

// ClampSpeed limits speed to [MinSpeed, MaxSpeed].
func ClampSpeed(speed int) int {
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

// ClampSlot limits slot to [0, NumSlots-1].
func ClampSlot(slot int) int {
	if slot < 0 {
		return 0
	}
	if slot > NumSlots-1 {
		return NumSlots - 1
	}
	return slot
}
