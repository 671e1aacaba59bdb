// Package chainwatch is the monitor's Poller and Ingestor: it pulls
// transactions for the watched address from the upstream explorer and
// turns each new one into a ledger record.
//
// The periodic-loop shape — a ticker, an exit channel, and an atomic
// in-flight guard instead of a second timer queuing up — is the same
// shape the original node's sealing loop used to avoid resubmitting work
// faster than it could be produced.
package chainwatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/explorer"
	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/ethereum/go-ethereum/log"
)

// Poller periodically fetches the watched address's transactions and
// ingests each one. Ticks never overlap: if a tick is still running when
// the next is due, the next is dropped rather than queued.
type Poller struct {
	explorer    *explorer.Client
	ledger      *ledger.Ledger
	watchedAddr string
	interval    time.Duration
	timeout     time.Duration

	running int32 // atomic: 1 while a tick is in flight
	exitCh  chan struct{}

	// lastCheck is read by the status endpoint; it is set after every tick,
	// successful or not, so /api/status always reflects reality.
	lastCheck atomic.Int64
}

// New builds a Poller. It does not start the background loop.
func New(client *explorer.Client, l *ledger.Ledger, watchedAddr string, interval, timeout time.Duration) *Poller {
	return &Poller{
		explorer:    client,
		ledger:      l,
		watchedAddr: watchedAddr,
		interval:    interval,
		timeout:     timeout,
		exitCh:      make(chan struct{}),
	}
}

// Start launches the poll loop in a new goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop terminates the poll loop. It does not wait for an in-flight tick.
func (p *Poller) Stop() {
	close(p.exitCh)
}

// LastCheckMS returns the wall-clock time, in epoch milliseconds, the most
// recent tick (successful or not) finished.
func (p *Poller) LastCheckMS() int64 {
	return p.lastCheck.Load()
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
				log.Debug("poller tick skipped: previous tick still running")
				continue
			}
			p.tick()
			atomic.StoreInt32(&p.running, 0)
		case <-p.exitCh:
			return
		}
	}
}

// tick runs exactly one poll: fetch, then ingest each transaction in
// upstream-reported order. A fetch failure aborts the tick without
// mutating any state.
func (p *Poller) tick() {
	defer p.lastCheck.Store(time.Now().UnixMilli())

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	txs, err := p.explorer.AddressTxs(ctx, p.watchedAddr)
	if err != nil {
		log.Warn("poller: upstream fetch failed, aborting tick", "err", err)
		return
	}

	for _, utx := range txs {
		if err := p.ingestOne(ctx, utx); err != nil {
			log.Warn("poller: failed to ingest transaction, skipping", "txid", utx.TxID, "err", err)
			continue
		}
	}
}
