package bridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"actuatorlink/clock"
	"actuatorlink/protocol"
	"actuatorlink/sim"
)

const pollInterval = time.Second

func newPolledBridge(t *testing.T) (*Bridge, *sim.Peer, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(time.Unix(1_700_000_000, 0))
	peer := sim.New()
	b := New(testConfig(), WithClock(clk))
	if err := b.InitWithBus(peer); err != nil {
		t.Fatalf("InitWithBus failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, peer, clk
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// tick advances past one poll interval and then past the settle delay
// of the status exchange it triggers.
func tick(clk *clock.FakeClock, settle time.Duration) {
	clk.Advance(pollInterval)
	clk.WaitForTimers(2)
	clk.Advance(settle)
}

func TestPollingCadenceOnline(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	statuses := NewStatusChannel(8)
	b.SetStatusObserver(statuses)

	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}
	if !b.IsPollingActive() {
		t.Error("Expected polling active")
	}

	for i := 0; i < 3; i++ {
		tick(clk, b.Config().SettleDelay)
		select {
		case st := <-statuses.C():
			if !st.Full {
				t.Errorf("Tick %d: expected full status, got %+v", i, st)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Tick %d: no status delivered", i)
		}
	}

	b.StopPolling()
	if got := len(peer.Commands()); got != 3 {
		t.Errorf("Expected one status query per window, got %d", got)
	}
	for _, cmd := range peer.Commands() {
		if _, ok := cmd.(protocol.StatusQuery); !ok {
			t.Errorf("Poller sent %#v", cmd)
		}
	}
	if s := b.Stats(); s.Polls != 3 || s.Notifications != 3 {
		t.Errorf("Expected 3 polls and notifications, got %+v", s)
	}
}

func TestPollingSkipsOfflinePeer(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	var notified atomic.Int32
	b.SetStatusObserver(ObserverFunc(func(*protocol.Status) { notified.Add(1) }))
	peer.SetOnline(false)

	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		clk.Advance(pollInterval)
		want := uint64(i)
		waitFor(t, "skipped poll", func() bool { return b.Stats().PollsSkipped == want })
	}
	b.StopPolling()

	if peer.Transmits() != 0 {
		t.Errorf("Offline peer received %d payloads", peer.Transmits())
	}
	if notified.Load() != 0 {
		t.Errorf("Observer called %d times for an offline peer", notified.Load())
	}
}

func TestStopPollingWaitsForTick(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	var notified atomic.Int32
	b.SetStatusObserver(ObserverFunc(func(*protocol.Status) { notified.Add(1) }))

	entered, release := peer.HoldReceive()
	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}
	tick(clk, b.Config().SettleDelay)
	<-entered

	stopped := make(chan struct{})
	go func() {
		b.StopPolling()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("StopPolling returned while a tick was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	if b.IsPollingActive() {
		t.Error("Polling should report inactive once stop is requested")
	}

	release()
	<-stopped
	if notified.Load() != 0 {
		t.Errorf("Observer called after stop was requested: %d", notified.Load())
	}

	clk.Advance(pollInterval)
	time.Sleep(10 * time.Millisecond)
	// One liveness check by the poller, one by the status exchange.
	if notified.Load() != 0 || peer.Probes() != 2 {
		t.Errorf("Poller ran after StopPolling: %d notifications, %d probes", notified.Load(), peer.Probes())
	}
}

func TestStartPollingErrors(t *testing.T) {
	if err := New(testConfig()).StartPolling(pollInterval); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}

	b, _, _ := newPolledBridge(t)
	if err := b.StartPolling(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}
	if err := b.StartPolling(pollInterval); !errors.Is(err, ErrPollingActive) {
		t.Errorf("Expected ErrPollingActive, got %v", err)
	}

	b.Close()
	if b.IsPollingActive() {
		t.Error("Close should stop polling")
	}
	b.StopPolling()
}

func TestExchangeRawNotInterleavedWithPoll(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	statuses := NewStatusChannel(4)
	b.SetStatusObserver(statuses)
	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}

	payload, err := protocol.Encode(protocol.StorageControl{Slot: 1, Action: protocol.Open})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := b.ExchangeRaw(context.Background(), payload, 16)
		done <- result{data, err}
	}()

	// Poll ticker plus the raw exchange's settle timer. Advancing fires
	// the tick while the raw exchange still holds the bus.
	clk.WaitForTimers(2)
	clk.Advance(pollInterval)

	var r result
	select {
	case r = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ExchangeRaw did not return")
	}
	if r.err != nil {
		t.Fatalf("ExchangeRaw failed: %v", r.err)
	}
	if !bytes.HasPrefix(r.data, []byte(`{"s":1}`)) || r.data[7] != 0 {
		t.Errorf("Expected the storage ack, got %q", r.data)
	}

	clk.WaitForTimers(2)
	clk.Advance(b.Config().SettleDelay)
	select {
	case st := <-statuses.C():
		if !st.Slots[1].IsOpen {
			t.Errorf("Expected poll after the raw command to see slot 1 open, got %+v", st.Slots)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No status delivered after the raw exchange")
	}

	cmds := peer.Commands()
	if len(cmds) != 2 {
		t.Fatalf("Expected 2 commands at the peer, got %d", len(cmds))
	}
	if _, ok := cmds[0].(protocol.StorageControl); !ok {
		t.Errorf("Expected the raw command first, got %#v", cmds[0])
	}
	if _, ok := cmds[1].(protocol.StatusQuery); !ok {
		t.Errorf("Expected the status query second, got %#v", cmds[1])
	}
}

func TestCloseRacingStartPolling(t *testing.T) {
	for i := 0; i < 50; i++ {
		b := New(testConfig())
		if err := b.InitWithBus(sim.New()); err != nil {
			t.Fatalf("InitWithBus failed: %v", err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			b.StartPolling(time.Hour)
		}()
		go func() {
			defer wg.Done()
			<-start
			b.Close()
		}()
		close(start)
		wg.Wait()

		if b.IsPollingActive() {
			t.Fatalf("Iteration %d: poller left running after Close", i)
		}
		if err := b.StartPolling(time.Hour); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Iteration %d: expected ErrNotInitialized after Close, got %v", i, err)
		}
	}
}

func TestPollingWithoutObserver(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}
	tick(clk, b.Config().SettleDelay)
	waitFor(t, "status query", func() bool { return len(peer.Commands()) == 1 })
	b.StopPolling()

	if b.Stats().Notifications != 0 {
		t.Errorf("Expected no notifications, got %d", b.Stats().Notifications)
	}
}

func TestStatusChannelDropsWhenFull(t *testing.T) {
	ch := NewStatusChannel(1)
	ch.OnStatus(&protocol.Status{Code: 1})
	ch.OnStatus(&protocol.Status{Code: 2})

	if ch.Dropped() != 1 {
		t.Errorf("Expected 1 dropped, got %d", ch.Dropped())
	}
	if st := <-ch.C(); st.Code != 1 {
		t.Errorf("Expected first status kept, got %d", st.Code)
	}
}

func TestForegroundDuringPolling(t *testing.T) {
	b, peer, clk := newPolledBridge(t)
	if err := b.StartPolling(pollInterval); err != nil {
		t.Fatalf("StartPolling failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.StorageOpen(context.Background(), 0)
		done <- err
	}()
	clk.WaitForTimers(2)
	clk.Advance(b.Config().SettleDelay)
	if err := <-done; err != nil {
		t.Fatalf("StorageOpen failed: %v", err)
	}
	if !peer.Status().Slots[0].IsOpen {
		t.Error("Slot 0 should be open")
	}
}
