package protocol

import (
	"encoding/json"
	"fmt"
)

// wireRequest is the on-the-wire request object. Field order is the
// emitted key order; nil fields are omitted so every request is the
// shortest valid encoding for its variant.
type wireRequest struct {
	Type          string  `json:"t"`
	Direction     *uint8  `json:"d,omitempty"`
	Speed         *int    `json:"p,omitempty"`
	DurationMS    *uint32 `json:"ms,omitempty"`
	DistanceMM    *uint32 `json:"mm,omitempty"`
	UntilObstacle *int    `json:"u,omitempty"`
	Slot          *int    `json:"i,omitempty"`
	Action        *uint8  `json:"a,omitempty"`
}

// Encode serializes cmd into its compact wire form. Speed and slot are
// clamped to their valid ranges.
func Encode(cmd Command) ([]byte, error) {
	req, err := toWire(cmd)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s command: %w", req.Type, err)
	}
	return data, nil
}

func toWire(cmd Command) (*wireRequest, error) {
	switch c := cmd.(type) {
	case VehicleMove:
		return vehicleToWire(c)
	case *VehicleMove:
		return vehicleToWire(*c)
	case StorageControl:
		return storageToWire(c)
	case *StorageControl:
		return storageToWire(*c)
	case StatusQuery, *StatusQuery:
		return &wireRequest{Type: TypeStatus}, nil
	case nil:
		return nil, fmt.Errorf("nil command")
	}
	return nil, fmt.Errorf("unsupported command type %T", cmd)
}

func vehicleToWire(c VehicleMove) (*wireRequest, error) {
	if !c.Direction.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(c.Direction))
	}

	dir := uint8(c.Direction)
	req := &wireRequest{Type: TypeVehicle, Direction: &dir}
	if c.Direction == Stop {
		return req, nil
	}

	speed := ClampSpeed(c.Speed)
	req.Speed = &speed

	switch {
	case c.DistanceMM != nil:
		mm := *c.DistanceMM
		req.DistanceMM = &mm
	case c.UntilObstacle:
		one := 1
		req.UntilObstacle = &one
	case c.DurationMS != nil:
		ms := *c.DurationMS
		req.DurationMS = &ms
	}
	return req, nil
}

func storageToWire(c StorageControl) (*wireRequest, error) {
	if c.Action != Open && c.Action != Close {
		return nil, fmt.Errorf("invalid action %d", uint8(c.Action))
	}
	slot := ClampSlot(c.Slot)
	action := uint8(c.Action)
	return &wireRequest{Type: TypeStorage, Slot: &slot, Action: &action}, nil
}

// ParseCommand is the inverse of Encode. The bridge never needs it; it
// exists for peers, simulators and loopback tests.
func ParseCommand(data []byte) (Command, error) {
	var req wireRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	switch req.Type {
	case TypeVehicle:
		if req.Direction == nil {
			return nil, fmt.Errorf("vehicle command without %q", KeyDirection)
		}
		move := VehicleMove{
			Direction:     Direction(*req.Direction),
			DurationMS:    req.DurationMS,
			DistanceMM:    req.DistanceMM,
			UntilObstacle: req.UntilObstacle != nil && *req.UntilObstacle != 0,
		}
		if !move.Direction.Valid() {
			return nil, fmt.Errorf("invalid direction %d", *req.Direction)
		}
		if req.Speed != nil {
			move.Speed = *req.Speed
		}
		return move, nil

	case TypeStorage:
		if req.Slot == nil || req.Action == nil {
			return nil, fmt.Errorf("storage command needs %q and %q", KeySlot, KeyAction)
		}
		return StorageControl{Slot: *req.Slot, Action: Action(*req.Action)}, nil

	case TypeStatus:
		return StatusQuery{}, nil
	}
	return nil, fmt.Errorf("unknown command type %q", req.Type)
}
