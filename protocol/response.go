package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// Response is a delivered reply. The set of implementations is closed:
// *Status and RawText. Failures are reported as errors by the caller of
// the exchange, never as a Response.
type Response interface {
	isResponse()
}

// SlotState is the latch state of one storage slot.
type SlotState struct {
	Slot   int
	IsOpen bool
}

// Status is a decoded reply. An acknowledgement such as {"s":1}
// decodes to a Status with only Code set and Full false.
type Status struct {
	Code         int32
	BatteryV     float32
	BLEConnected bool
	HeartRate    int32
	MotorEnabled bool
	IsMoving     bool
	Slots        [NumSlots]SlotState

	// Full is true when any telemetry key beyond "s" was present.
	Full bool

	// Reported marks the slot indices present in the reply. A reply cut
	// by Frame may report any subset.
	Reported [NumSlots]bool

	// SlotsReported counts the distinct slots in Reported.
	SlotsReported int

	// Raw is the sanitized text the status was decoded from.
	Raw string
}

// OK reports whether the peer answered with StatusOK.
func (s *Status) OK() bool { return s.Code == StatusOK }

// Soft names a non-fatal condition attached to a RawText reply.
type Soft uint8

const (
	SoftNone Soft = iota
	SoftDecodeFailed
	SoftReceiveTimeout
)

func (s Soft) String() string {
	switch s {
	case SoftNone:
		return "none"
	case SoftDecodeFailed:
		return "decode_failed"
	case SoftReceiveTimeout:
		return "receive_timeout"
	}
	return fmt.Sprintf("soft(%d)", uint8(s))
}

// RawText is a reply that was delivered but could not be decoded, or a
// command that was sent without a confirmed reply.
type RawText struct {
	Text   string
	Reason Soft
}

// SentTimeout is the text of a RawText for a command that was
// transmitted but whose reply never arrived.
const SentTimeout = "sent/timeout"

func (*Status) isResponse() {}
func (RawText) isResponse() {}

type wireSlot struct {
	Slot *int `json:"i"`
	Open *int `json:"o"`
}

type wireStatus struct {
	Status    *int32     `json:"s"`
	Battery   *float32   `json:"b,omitempty"`
	BLE       *int       `json:"c,omitempty"`
	HeartRate *int32     `json:"h,omitempty"`
	Motor     *int       `json:"m,omitempty"`
	Moving    *int       `json:"v,omitempty"`
	Slots     []wireSlot `json:"g,omitempty"`
}

// Decode turns sanitized reply text into a Response. Text that parses
// as an object carrying "s" becomes a *Status; anything else becomes
// RawText with SoftDecodeFailed.
//
// Decoding is lenient: trailing commas are tolerated, and an object
// left open by Frame (which stops at the first '}') is closed before
// parsing.
func Decode(text string) Response {
	status, err := DecodeStatus(text)
	if err != nil {
		return RawText{Text: text, Reason: SoftDecodeFailed}
	}
	return status
}

// DecodeStatus parses reply text into a Status.
func DecodeStatus(text string) (*Status, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("reply is not a JSON object")
	}

	var ws wireStatus
	data := jsonc.ToJSON([]byte(completeJSON(trimmed)))
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	if ws.Status == nil {
		return nil, fmt.Errorf("reply has no %q field", KeyStatus)
	}

	st := &Status{Code: *ws.Status, Raw: text}
	for i := range st.Slots {
		st.Slots[i].Slot = i
	}
	if ws.Battery != nil {
		st.BatteryV = *ws.Battery
		st.Full = true
	}
	if ws.BLE != nil {
		st.BLEConnected = *ws.BLE != 0
		st.Full = true
	}
	if ws.HeartRate != nil {
		st.HeartRate = *ws.HeartRate
		st.Full = true
	}
	if ws.Motor != nil {
		st.MotorEnabled = *ws.Motor != 0
		st.Full = true
	}
	if ws.Moving != nil {
		st.IsMoving = *ws.Moving != 0
		st.Full = true
	}
	if ws.Slots != nil {
		st.Full = true
	}
	for _, s := range ws.Slots {
		if s.Slot == nil || *s.Slot < 0 || *s.Slot >= NumSlots {
			continue
		}
		st.Slots[*s.Slot].IsOpen = s.Open != nil && *s.Open != 0
		if !st.Reported[*s.Slot] {
			st.Reported[*s.Slot] = true
			st.SlotsReported++
		}
	}
	return st, nil
}

// completeJSON appends the closers missing from a truncated object so
// `{"s":1,"g":[{"i":0,"o":1}` parses as `{"s":1,"g":[{"i":0,"o":1}]}`.
// Unterminated strings are left alone and fail to parse.
func completeJSON(text string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString || len(stack) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// EncodeAck returns the minimal acknowledgement {"s":code}.
func EncodeAck(code int32) []byte {
	return []byte(fmt.Sprintf(`{"%s":%d}`, KeyStatus, code))
}

// EncodeStatus returns the full status reply for st, the form a peer
// sends in answer to StatusQuery.
func EncodeStatus(st *Status) ([]byte, error) {
	ws := wireStatus{
		Status:    &st.Code,
		Battery:   &st.BatteryV,
		BLE:       intPtr(st.BLEConnected),
		HeartRate: &st.HeartRate,
		Motor:     intPtr(st.MotorEnabled),
		Moving:    intPtr(st.IsMoving),
	}
	for i := range st.Slots {
		slot := i
		ws.Slots = append(ws.Slots, wireSlot{Slot: &slot, Open: intPtr(st.Slots[i].IsOpen)})
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return data, nil
}

func intPtr(b bool) *int {
	v := 0
	if b {
		v = 1
	}
	return &v
}
