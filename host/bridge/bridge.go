// Package bridge drives the actuator peer: it probes liveness, sends one
// encoded command per exchange, waits for the peer to settle, and reads
// back a single framed reply. A background poller can fetch status on a
// fixed interval and hand it to an observer.
//
// All bus traffic from one Bridge, foreground and poller alike, is
// serialized by a single mutex held for the full exchange.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"actuatorlink/clock"
	"actuatorlink/protocol"
	"actuatorlink/transport"
)

// Config holds the addressing and timing of the exchange. Zero fields
// take the value from DefaultConfig.
type Config struct {
	Address uint16

	ProbeTimeout    time.Duration
	TransmitTimeout time.Duration
	SettleDelay     time.Duration
	ReceiveTimeout  time.Duration
	RawTimeout      time.Duration

	// ReadSize is the number of bytes requested per receive.
	ReadSize int

	// MaxResponse caps the framed reply; the excess is dropped.
	MaxResponse int
}

// DefaultConfig returns the timings the actuator firmware is built for.
func DefaultConfig() Config {
	return Config{
		Address:         protocol.DefaultAddress,
		ProbeTimeout:    50 * time.Millisecond,
		TransmitTimeout: 100 * time.Millisecond,
		SettleDelay:     50 * time.Millisecond,
		ReceiveTimeout:  100 * time.Millisecond,
		RawTimeout:      time.Second,
		ReadSize:        protocol.ReadSize,
		MaxResponse:     protocol.MaxResponse,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Address == 0 {
		c.Address = def.Address
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.TransmitTimeout <= 0 {
		c.TransmitTimeout = def.TransmitTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = def.SettleDelay
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = def.ReceiveTimeout
	}
	if c.RawTimeout <= 0 {
		c.RawTimeout = def.RawTimeout
	}
	if c.ReadSize <= 0 {
		c.ReadSize = def.ReadSize
	}
	if c.MaxResponse <= 0 {
		c.MaxResponse = def.MaxResponse
	}
}

// Opener opens the bus used by Init. The closer is called when the
// Bridge is closed.
type Opener func(ctx context.Context) (transport.Bus, io.Closer, error)

// Option customizes a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithClock sets the clock used for the settle delay and the poll ticker.
func WithClock(c clock.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithFramer replaces protocol.Frame, e.g. with protocol.FrameBalanced.
func WithFramer(f protocol.Framer) Option {
	return func(b *Bridge) { b.framer = f }
}

// WithOpener sets the function Init uses to open an owned bus.
func WithOpener(o Opener) Option {
	return func(b *Bridge) { b.open = o }
}

// Bridge is the controller side of the actuator link.
type Bridge struct {
	cfg    Config
	log    *slog.Logger
	clock  clock.Clock
	framer protocol.Framer
	open   Opener

	// mu serializes exchanges and guards the fields below it.
	mu          sync.Mutex
	handle      transport.Handle
	device      transport.Device
	link        transport.Transport
	scratch     []byte
	initialized atomic.Bool

	pollMu   sync.Mutex
	poll     *poller
	observer StatusObserver

	stats counters
}

// New returns an uninitialized Bridge.
func New(cfg Config, opts ...Option) *Bridge {
	cfg.applyDefaults()
	b := &Bridge{
		cfg:    cfg,
		clock:  clock.Real(),
		framer: protocol.Frame,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config { return b.cfg }

// Init opens a bus with the configured Opener and binds the peer. The
// Bridge owns that bus and closes it on Close. Calling Init on an
// initialized Bridge is a no-op.
func (b *Bridge) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized.Load() {
		b.log.Warn("bridge already initialized")
		return nil
	}
	if b.open == nil {
		return newError(KindInvalidArgument, "no bus opener configured", nil)
	}

	bus, closer, err := b.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open bus: %w", err)
	}
	handle := transport.Own(bus, closer)
	if err := b.attachLocked(handle); err != nil {
		handle.Release()
		return err
	}
	b.log.Info("bridge initialized", "address", fmt.Sprintf("0x%02x", b.cfg.Address), "bus", "owned")
	return nil
}

// InitWithBus binds the peer on a bus owned by someone else. Close
// detaches the peer but leaves the bus open.
func (b *Bridge) InitWithBus(bus transport.Bus) error {
	if bus == nil {
		return newError(KindInvalidArgument, "nil bus", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized.Load() {
		b.log.Warn("bridge already initialized")
		return nil
	}
	if err := b.attachLocked(transport.Borrow(bus)); err != nil {
		return err
	}
	b.log.Info("bridge initialized", "address", fmt.Sprintf("0x%02x", b.cfg.Address), "bus", "borrowed")
	return nil
}

// InitWithTransport uses a link that is already bound to the peer. The
// Bridge neither detaches nor closes it.
func (b *Bridge) InitWithTransport(t transport.Transport) error {
	if t == nil {
		return newError(KindInvalidArgument, "nil transport", nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized.Load() {
		b.log.Warn("bridge already initialized")
		return nil
	}
	b.link = t
	b.scratch = make([]byte, b.cfg.ReadSize)
	b.initialized.Store(true)
	b.log.Info("bridge initialized", "bus", "pre-bound")
	return nil
}

func (b *Bridge) attachLocked(h transport.Handle) error {
	dev, err := h.Bus().Attach(b.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to attach peer 0x%02x: %w", b.cfg.Address, err)
	}
	b.handle = h
	b.device = dev
	b.link = dev
	b.scratch = make([]byte, b.cfg.ReadSize)
	b.initialized.Store(true)
	return nil
}

// Close stops polling, detaches the peer and releases the bus if the
// Bridge owns it. Close is idempotent.
func (b *Bridge) Close() error {
	b.StopPolling()
	err := b.release()
	// A StartPolling that passed its check before release may have
	// registered a poller since the first stop.
	b.StopPolling()
	return err
}

func (b *Bridge) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return nil
	}
	b.initialized.Store(false)

	var errs []error
	if b.device != nil {
		if err := b.device.Detach(); err != nil {
			errs = append(errs, fmt.Errorf("failed to detach peer: %w", err))
		}
	}
	owned := false
	if b.handle != nil {
		owned = b.handle.Owned()
		if err := b.handle.Release(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release bus: %w", err))
		}
	}
	b.handle, b.device, b.link, b.scratch = nil, nil, nil, nil

	b.log.Info("bridge closed", "owned_bus", owned)
	return errors.Join(errs...)
}

// IsInitialized reports whether the peer is bound.
func (b *Bridge) IsInitialized() bool { return b.initialized.Load() }

// IsPeerOnline sends a liveness probe and reports whether the peer
// acknowledged it. It waits for any exchange in progress.
func (b *Bridge) IsPeerOnline(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() || ctx.Err() != nil {
		return false
	}
	return b.probeLocked() == nil
}

// Probe is IsPeerOnline.
func (b *Bridge) Probe(ctx context.Context) bool { return b.IsPeerOnline(ctx) }

func (b *Bridge) probeLocked() error {
	return b.link.Transmit([]byte{0}, b.cfg.ProbeTimeout)
}

// Execute runs one exchange: probe, transmit the encoded command, wait
// for the peer to settle, receive and decode the reply.
//
// A reply that never arrives yields RawText{SentTimeout,
// SoftReceiveTimeout}; a reply that does not decode yields RawText with
// SoftDecodeFailed. Both come with a nil error. Everything else that
// prevents a reply is an *Error.
func (b *Bridge) Execute(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executeLocked(ctx, cmd)
}

func (b *Bridge) executeLocked(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if !b.initialized.Load() {
		return nil, newError(KindNotInitialized, "", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindCanceled, "", err)
	}

	payload, err := protocol.Encode(cmd)
	if err != nil {
		return nil, newError(KindEncodeFailed, "", err)
	}

	b.stats.exchanges.Add(1)
	if err := b.probeLocked(); err != nil {
		b.stats.offline.Add(1)
		b.log.Warn("peer offline, command skipped", "type", cmd.Type(), "err", err)
		return nil, newError(KindOffline, "peer did not acknowledge probe", err)
	}

	b.log.Debug("sending command", "payload", string(payload), "len", len(payload))
	if err := b.link.Transmit(payload, b.cfg.TransmitTimeout); err != nil {
		b.stats.transmitFailures.Add(1)
		b.log.Warn("failed to send command", "err", err)
		return nil, newError(KindTransmitFailed, "", err)
	}

	select {
	case <-b.clock.After(b.cfg.SettleDelay):
	case <-ctx.Done():
		return nil, newError(KindCanceled, "while waiting for peer", ctx.Err())
	}

	buf := b.scratch
	clear(buf)
	if err := b.link.Receive(buf, b.cfg.ReceiveTimeout); err != nil {
		b.stats.receiveTimeouts.Add(1)
		b.log.Warn("no reply from peer", "err", err)
		return protocol.RawText{Text: protocol.SentTimeout, Reason: protocol.SoftReceiveTimeout}, nil
	}

	frame, err := b.framer(buf)
	if err != nil {
		b.stats.invalidResponses.Add(1)
		b.log.Warn("invalid reply, no JSON found")
		return nil, newError(KindInvalidResponse, "", err)
	}
	frame, truncated := protocol.Cap(frame, b.cfg.MaxResponse)
	if truncated {
		b.stats.truncated.Add(1)
		b.log.Warn("reply too long, truncated", "max", b.cfg.MaxResponse)
	}

	text := protocol.Sanitize(frame)
	b.logReply(text)

	resp := protocol.Decode(text)
	if raw, ok := resp.(protocol.RawText); ok && raw.Reason == protocol.SoftDecodeFailed {
		b.stats.decodeFailures.Add(1)
	}
	return resp, nil
}

const maxLoggedReply = 100

func (b *Bridge) logReply(text string) {
	if len(text) == 0 || text[0] != '{' {
		b.log.Info("received reply", "len", len(text), "content", "[not JSON]")
		return
	}
	if len(text) > maxLoggedReply {
		text = text[:maxLoggedReply] + "..."
	}
	b.log.Info("received reply", "len", len(text), "content", text)
}

// SendRaw transmits data as-is, without a probe, under the exchange lock.
func (b *Bridge) SendRaw(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return newError(KindNotInitialized, "", nil)
	}
	if err := ctx.Err(); err != nil {
		return newError(KindCanceled, "", err)
	}
	if err := b.link.Transmit(data, b.cfg.RawTimeout); err != nil {
		return newError(KindTransmitFailed, "raw", err)
	}
	return nil
}

// ReceiveRaw reads n bytes as-is under the exchange lock.
func (b *Bridge) ReceiveRaw(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, newError(KindInvalidArgument, fmt.Sprintf("raw receive of %d bytes", n), nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return nil, newError(KindNotInitialized, "", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindCanceled, "", err)
	}
	buf := make([]byte, n)
	if err := b.link.Receive(buf, b.cfg.RawTimeout); err != nil {
		return nil, newError(KindReceiveTimeout, "raw", err)
	}
	return buf, nil
}

// ExchangeRaw transmits data as-is, waits the settle delay and reads n
// bytes, all under one hold of the exchange lock so no poll or command
// can land between the write and the read. No probe is sent.
func (b *Bridge) ExchangeRaw(ctx context.Context, data []byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, newError(KindInvalidArgument, fmt.Sprintf("raw receive of %d bytes", n), nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return nil, newError(KindNotInitialized, "", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(KindCanceled, "", err)
	}
	if err := b.link.Transmit(data, b.cfg.RawTimeout); err != nil {
		return nil, newError(KindTransmitFailed, "raw", err)
	}

	select {
	case <-b.clock.After(b.cfg.SettleDelay):
	case <-ctx.Done():
		return nil, newError(KindCanceled, "while waiting for peer", ctx.Err())
	}

	buf := make([]byte, n)
	if err := b.link.Receive(buf, b.cfg.RawTimeout); err != nil {
		return nil, newError(KindReceiveTimeout, "raw", err)
	}
	return buf, nil
}
