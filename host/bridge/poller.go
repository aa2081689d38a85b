package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"actuatorlink/clock"
	"actuatorlink/protocol"
)

// StatusObserver receives each status fetched by the poller. OnStatus
// runs on the poll goroutine; it must not call StopPolling or Close.
type StatusObserver interface {
	OnStatus(st *protocol.Status)
}

// ObserverFunc adapts a function to StatusObserver.
type ObserverFunc func(st *protocol.Status)

func (f ObserverFunc) OnStatus(st *protocol.Status) { f(st) }

// StatusChannel is a StatusObserver that queues copies of each status on
// a bounded channel. When the channel is full the status is dropped.
type StatusChannel struct {
	c       chan protocol.Status
	dropped atomic.Uint64
}

// NewStatusChannel returns a StatusChannel buffering up to size entries.
func NewStatusChannel(size int) *StatusChannel {
	if size < 1 {
		size = 1
	}
	return &StatusChannel{c: make(chan protocol.Status, size)}
}

func (s *StatusChannel) OnStatus(st *protocol.Status) {
	select {
	case s.c <- *st:
	default:
		s.dropped.Add(1)
	}
}

// C returns the receive side of the queue. It is never closed.
func (s *StatusChannel) C() <-chan protocol.Status { return s.c }

// Dropped returns the number of statuses discarded because C was full.
func (s *StatusChannel) Dropped() uint64 { return s.dropped.Load() }

type poller struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// SetStatusObserver installs o, replacing any previous observer. A nil o
// disables notifications; polling continues.
func (b *Bridge) SetStatusObserver(o StatusObserver) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	b.observer = o
}

// StartPolling fetches status every interval until StopPolling or Close.
// Ticks that find the peer offline are skipped without a command.
func (b *Bridge) StartPolling(interval time.Duration) error {
	if interval <= 0 {
		return newError(KindInvalidArgument, fmt.Sprintf("poll interval %v", interval), nil)
	}

	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	// Checked under pollMu: Close clears initialized before its final
	// StopPolling, which must then see any poller registered here.
	if !b.initialized.Load() {
		return newError(KindNotInitialized, "", nil)
	}
	if b.poll != nil {
		return newError(KindPollingActive, fmt.Sprintf("every %v", b.poll.interval), nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	ticker := b.clock.NewTicker(interval)
	go b.pollLoop(ctx, p, ticker)
	b.poll = p

	b.log.Info("status polling started", "interval", interval)
	return nil
}

// StopPolling stops the poller and waits for it to exit. No observer
// call happens after StopPolling returns. Stopping an idle Bridge is a
// no-op.
func (b *Bridge) StopPolling() {
	b.pollMu.Lock()
	p := b.poll
	b.poll = nil
	b.pollMu.Unlock()

	if p == nil {
		return
	}
	p.cancel()
	<-p.done
	b.log.Info("status polling stopped")
}

// IsPollingActive reports whether the poller is running.
func (b *Bridge) IsPollingActive() bool {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()
	return b.poll != nil
}

func (b *Bridge) pollLoop(ctx context.Context, p *poller, ticker *clock.Ticker) {
	defer close(p.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pollOnce(ctx)
		}
	}
}

func (b *Bridge) pollOnce(ctx context.Context) {
	b.stats.polls.Add(1)

	st, ok := b.fetchStatus(ctx)
	if !ok || ctx.Err() != nil {
		return
	}

	b.pollMu.Lock()
	obs := b.observer
	b.pollMu.Unlock()
	if obs == nil {
		return
	}
	b.stats.notifications.Add(1)
	obs.OnStatus(st)
}

// fetchStatus holds the exchange lock across the liveness check and the
// status exchange so no foreground command lands between them.
func (b *Bridge) fetchStatus(ctx context.Context) (*protocol.Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized.Load() {
		return nil, false
	}
	if err := b.probeLocked(); err != nil {
		b.stats.pollsSkipped.Add(1)
		b.log.Debug("peer offline, status poll skipped")
		return nil, false
	}

	resp, err := b.executeLocked(ctx, protocol.StatusQuery{})
	if err != nil {
		b.log.Debug("status poll failed", "err", err)
		return nil, false
	}
	st, ok := resp.(*protocol.Status)
	if !ok {
		return nil, false
	}
	return st, true
}
