package bridge

import (
	"context"

	"actuatorlink/protocol"
)

// DefaultMoveMM is the distance covered by VehicleMoveDefault.
const DefaultMoveMM = 500

// VehicleMoveTime drives in dir at speed for durationMS milliseconds.
func (b *Bridge) VehicleMoveTime(ctx context.Context, dir protocol.Direction, speed int, durationMS uint32) (protocol.Response, error) {
	return b.Execute(ctx, protocol.MoveForTime(dir, speed, durationMS))
}

// VehicleMoveDistance drives in dir at speed for distanceMM millimetres.
func (b *Bridge) VehicleMoveDistance(ctx context.Context, dir protocol.Direction, speed int, distanceMM uint32) (protocol.Response, error) {
	resp, err := b.Execute(ctx, protocol.MoveForDistance(dir, speed, distanceMM))
	b.log.Info("vehicle distance command", "direction", dir, "distance_mm", distanceMM, "speed", speed, "result", LegacyText(resp, err))
	return resp, err
}

// VehicleMoveDefault drives DefaultMoveMM in dir.
func (b *Bridge) VehicleMoveDefault(ctx context.Context, dir protocol.Direction, speed int) (protocol.Response, error) {
	return b.VehicleMoveDistance(ctx, dir, speed, DefaultMoveMM)
}

// VehicleMoveUntilObstacle drives in dir until the peer's range sensor
// trips.
func (b *Bridge) VehicleMoveUntilObstacle(ctx context.Context, dir protocol.Direction, speed int) (protocol.Response, error) {
	resp, err := b.Execute(ctx, protocol.MoveUntilObstacle(dir, speed))
	b.log.Info("vehicle until obstacle", "direction", dir, "speed", speed, "result", LegacyText(resp, err))
	return resp, err
}

func (b *Bridge) VehicleStop(ctx context.Context) (protocol.Response, error) {
	return b.Execute(ctx, protocol.StopMove())
}

// StorageControl opens or closes a slot. Out-of-range slots are clamped.
func (b *Bridge) StorageControl(ctx context.Context, slot int, action protocol.Action) (protocol.Response, error) {
	resp, err := b.Execute(ctx, protocol.StorageControl{Slot: slot, Action: action})
	b.log.Info("storage command", "slot", slot, "action", action, "result", LegacyText(resp, err))
	return resp, err
}

func (b *Bridge) StorageOpen(ctx context.Context, slot int) (protocol.Response, error) {
	return b.StorageControl(ctx, slot, protocol.Open)
}

func (b *Bridge) StorageClose(ctx context.Context, slot int) (protocol.Response, error) {
	return b.StorageControl(ctx, slot, protocol.Close)
}

// GetStatus asks the peer for its telemetry.
func (b *Bridge) GetStatus(ctx context.Context) (protocol.Response, error) {
	return b.Execute(ctx, protocol.StatusQuery{})
}

// ReadStatus is GetStatus for callers that need a decoded Status: a
// missing reply fails with KindReceiveTimeout and an undecodable one with
// KindDecodeFailed.
func (b *Bridge) ReadStatus(ctx context.Context) (*protocol.Status, error) {
	resp, err := b.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return asStatus(resp)
}

func asStatus(resp protocol.Response) (*protocol.Status, error) {
	switch r := resp.(type) {
	case *protocol.Status:
		return r, nil
	case protocol.RawText:
		if r.Reason == protocol.SoftReceiveTimeout {
			return nil, newError(KindReceiveTimeout, "", nil)
		}
		return nil, newError(KindDecodeFailed, r.Text, nil)
	}
	return nil, newError(KindDecodeFailed, "unexpected response", nil)
}

// SendVehicleCommand is the string form of VehicleMoveTime. Direction
// names are those accepted by protocol.ParseDirection; "stop" sends a
// stop regardless of speed and duration. Negative durations count as 0.
func (b *Bridge) SendVehicleCommand(ctx context.Context, direction string, speed, durationMS int) (protocol.Response, error) {
	dir, err := protocol.ParseDirection(direction)
	if err != nil {
		return nil, newError(KindInvalidArgument, "", err)
	}
	if dir == protocol.Stop {
		return b.VehicleStop(ctx)
	}
	if durationMS < 0 {
		durationMS = 0
	}
	return b.VehicleMoveTime(ctx, dir, speed, uint32(durationMS))
}

// SendStorageCommand is the string form of StorageControl.
func (b *Bridge) SendStorageCommand(ctx context.Context, slot int, action string) (protocol.Response, error) {
	act, err := protocol.ParseAction(action)
	if err != nil {
		return nil, newError(KindInvalidArgument, "", err)
	}
	return b.StorageControl(ctx, slot, act)
}
