// Package protocol implements the compact JSON wire format spoken by the
// actuator peripheral: command encoding, response framing, sanitizing and
// status decoding.
//
// Requests are single JSON objects with one-letter keys, for example
//
//	{"t":"v","d":1,"p":50,"ms":2000}   forward at 50% for 2 s
//	{"t":"v","d":1,"p":50,"mm":500}    forward 500 mm at 50%
//	{"t":"v","d":0}                    stop
//	{"t":"s","i":0,"a":1}              open slot 0
//	{"t":"t"}                          status query
//
// Replies carry no length prefix. The peer answers {"s":1} (ok) or
// {"s":-1} (error); a status query adds battery, link, motion and slot
// fields. See Frame for how a reply is located in the receive buffer.
package protocol

// DefaultAddress is the 7-bit bus address of the actuator peer.
const DefaultAddress = 0x55

// Exchange limits
const (
	// ReadSize is the number of bytes requested from the peer per reply.
	ReadSize = 128

	// MaxResponse caps the framed reply; anything beyond is discarded.
	MaxResponse = 200

	// Placeholder replaces bytes that are not printable ASCII.
	Placeholder = '?'
)

// Request keys
const (
	KeyType          = "t"
	KeyDirection     = "d"
	KeySpeed         = "p"
	KeyDuration      = "ms"
	KeyDistance      = "mm"
	KeyUntilObstacle = "u"
	KeySlot          = "i"
	KeyAction        = "a"
)

// Type discriminator values. TypeStatus deliberately reuses the letter
// of KeyType; the peer firmware expects it.
const (
	TypeVehicle = "v"
	TypeStorage = "s"
	TypeStatus  = "t"
)

// Reply keys
const (
	KeyStatus    = "s"
	KeyBattery   = "b"
	KeyBLE       = "c"
	KeyHeartRate = "h"
	KeyMotor     = "m"
	KeyMoving    = "v"
	KeySlots     = "g"
	KeyOpen      = "o"
)

// Status codes carried in the "s" field
const (
	StatusOK    = 1
	StatusError = -1
)

// NumSlots is the number of storage slots on the peer.
const NumSlots = 4

// Speed bounds in percent
const (
	MinSpeed = 0
	MaxSpeed = 100
)
