package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/shlex"

	"actuatorlink/host/bridge"
	"actuatorlink/protocol"
)

// shell is the interactive command loop. Output from the poller and from
// commands share one writer, so every write goes through print.
type shell struct {
	b      *bridge.Bridge
	mu     sync.Mutex
	out    io.Writer
	legacy bool
}

func newShell(b *bridge.Bridge, out io.Writer) *shell {
	return &shell{b: b, out: out}
}

func (s *shell) print(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// run reads commands from in until EOF, "quit" or ctx is done.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		s.print("> ")
		select {
		case <-ctx.Done():
			s.print("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				s.print("Error: %v\n", err)
			}
			if quit {
				s.print("Goodbye!\n")
				return nil
			}
		}
	}
}

// exec runs one command line.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("failed to parse command: %w", err)
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		s.printHelp()

	case "online":
		if s.b.IsPeerOnline(ctx) {
			s.print("peer online\n")
		} else {
			s.print("peer offline\n")
		}

	case "status":
		resp, err := s.b.GetStatus(ctx)
		s.render(resp, err)

	case "move", "distance":
		if err := want(args, 3, cmd+" <direction> <speed> <value>"); err != nil {
			return false, err
		}
		dir, speed, err := parseMotion(args[0], args[1])
		if err != nil {
			return false, err
		}
		value, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return false, fmt.Errorf("invalid %s value %q", cmd, args[2])
		}
		var resp protocol.Response
		if cmd == "move" {
			resp, err = s.b.VehicleMoveTime(ctx, dir, speed, uint32(value))
		} else {
			resp, err = s.b.VehicleMoveDistance(ctx, dir, speed, uint32(value))
		}
		s.render(resp, err)

	case "go", "until":
		if err := want(args, 2, cmd+" <direction> <speed>"); err != nil {
			return false, err
		}
		dir, speed, err := parseMotion(args[0], args[1])
		if err != nil {
			return false, err
		}
		var resp protocol.Response
		if cmd == "go" {
			resp, err = s.b.VehicleMoveDefault(ctx, dir, speed)
		} else {
			resp, err = s.b.VehicleMoveUntilObstacle(ctx, dir, speed)
		}
		s.render(resp, err)

	case "stop":
		resp, err := s.b.VehicleStop(ctx)
		s.render(resp, err)

	case "open", "close":
		if err := want(args, 1, cmd+" <slot>"); err != nil {
			return false, err
		}
		slot, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid slot %q", args[0])
		}
		action, _ := protocol.ParseAction(cmd)
		resp, err := s.b.StorageControl(ctx, slot, action)
		s.render(resp, err)

	case "raw":
		if err := want(args, 1, "raw <payload>"); err != nil {
			return false, err
		}
		data, err := s.b.ExchangeRaw(ctx, []byte(args[0]), s.b.Config().ReadSize)
		if err != nil {
			return false, err
		}
		s.print("%s\n", protocol.Sanitize(data))

	case "poll":
		return false, s.poll(args)

	case "stats":
		st := s.b.Stats()
		s.print("exchanges=%d offline=%d transmit_failures=%d receive_timeouts=%d invalid=%d truncated=%d decode_failures=%d\n",
			st.Exchanges, st.Offline, st.TransmitFailures, st.ReceiveTimeouts, st.InvalidResponses, st.Truncated, st.DecodeFailures)
		s.print("polls=%d skipped=%d notifications=%d polling=%t\n",
			st.Polls, st.PollsSkipped, st.Notifications, s.b.IsPollingActive())

	case "legacy":
		if err := want(args, 1, "legacy on|off"); err != nil {
			return false, err
		}
		switch args[0] {
		case "on":
			s.legacy = true
		case "off":
			s.legacy = false
		default:
			return false, fmt.Errorf("usage: legacy on|off")
		}

	default:
		s.print("Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return false, nil
}

func (s *shell) poll(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: poll start <interval> | poll stop")
	}
	switch args[0] {
	case "start":
		interval := 2 * time.Second
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid interval %q", args[1])
			}
			interval = d
		}
		return s.startPolling(interval)
	case "stop":
		s.b.StopPolling()
		s.print("polling stopped\n")
		return nil
	}
	return fmt.Errorf("usage: poll start <interval> | poll stop")
}

func (s *shell) startPolling(interval time.Duration) error {
	s.b.SetStatusObserver(bridge.ObserverFunc(func(st *protocol.Status) {
		s.print("\n[poll] %s\n", formatStatus(st))
	}))
	if err := s.b.StartPolling(interval); err != nil {
		return err
	}
	s.print("polling every %v\n", interval)
	return nil
}

func (s *shell) render(resp protocol.Response, err error) {
	if s.legacy {
		s.print("%s\n", bridge.LegacyText(resp, err))
		return
	}
	if err != nil {
		s.print("Error: %v\n", err)
		return
	}
	switch r := resp.(type) {
	case *protocol.Status:
		s.print("%s\n", formatStatus(r))
	case protocol.RawText:
		s.print("raw reply %q (%s)\n", r.Text, r.Reason)
	}
}

func formatStatus(st *protocol.Status) string {
	if !st.Full {
		if st.OK() {
			return "ok"
		}
		return fmt.Sprintf("status %d", st.Code)
	}
	slots := ""
	for i := range st.Slots {
		if !st.Reported[i] {
			continue
		}
		state := "closed"
		if st.Slots[i].IsOpen {
			state = "open"
		}
		slots += fmt.Sprintf(" slot%d=%s", i, state)
	}
	return fmt.Sprintf("status=%d battery=%.2fV ble=%t hr=%d motor=%t moving=%t%s",
		st.Code, st.BatteryV, st.BLEConnected, st.HeartRate, st.MotorEnabled, st.IsMoving, slots)
}

func parseMotion(dirArg, speedArg string) (protocol.Direction, int, error) {
	dir, err := protocol.ParseDirection(dirArg)
	if err != nil {
		return 0, 0, err
	}
	speed, err := strconv.Atoi(speedArg)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid speed %q", speedArg)
	}
	return dir, speed, nil
}

func want(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (s *shell) printHelp() {
	s.print(`
Available commands:
  help                           - Show this help message
  online                         - Probe the peer
  status                         - Fetch peer telemetry
  move <dir> <speed> <ms>        - Drive for a duration
  distance <dir> <speed> <mm>    - Drive for a distance
  go <dir> <speed>               - Drive the default 500 mm
  until <dir> <speed>            - Drive until an obstacle
  stop                           - Stop the vehicle
  open <slot> / close <slot>     - Open or close a storage slot
  raw <payload>                  - Send a raw payload and dump the reply
  poll start [interval] | stop   - Control background status polling
  stats                          - Show exchange counters
  legacy on|off                  - Print replies in the legacy text form
  quit/exit/q                    - Exit the program

Directions: stop, forward, backward, left, right, rotate_left, rotate_right

`)
}
