package bridge

import "sync/atomic"

// Stats is a snapshot of exchange counters since New.
type Stats struct {
	Exchanges        uint64
	Offline          uint64
	TransmitFailures uint64
	ReceiveTimeouts  uint64
	InvalidResponses uint64
	Truncated        uint64
	DecodeFailures   uint64
	Polls            uint64
	PollsSkipped     uint64
	Notifications    uint64
}

type counters struct {
	exchanges        atomic.Uint64
	offline          atomic.Uint64
	transmitFailures atomic.Uint64
	receiveTimeouts  atomic.Uint64
	invalidResponses atomic.Uint64
	truncated        atomic.Uint64
	decodeFailures   atomic.Uint64
	polls            atomic.Uint64
	pollsSkipped     atomic.Uint64
	notifications    atomic.Uint64
}

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	c := &b.stats
	return Stats{
		Exchanges:        c.exchanges.Load(),
		Offline:          c.offline.Load(),
		TransmitFailures: c.transmitFailures.Load(),
		ReceiveTimeouts:  c.receiveTimeouts.Load(),
		InvalidResponses: c.invalidResponses.Load(),
		Truncated:        c.truncated.Load(),
		DecodeFailures:   c.decodeFailures.Load(),
		Polls:            c.polls.Load(),
		PollsSkipped:     c.pollsSkipped.Load(),
		Notifications:    c.notifications.Load(),
	}
}
