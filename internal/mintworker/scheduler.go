// Package mintworker is the Worker's Scheduler and Executor: a periodic
// loop that fetches the Monitor's pending-mint queue and dispatches at
// most one inscription-tool invocation per txid at a time.
package mintworker

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/journal"
	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"
)

// Config bundles the Scheduler's tunables, mirroring mintconf.Worker but
// kept free of that package's config-loading concerns.
type Config struct {
	ServerURL       string
	WalletName      string
	FilePath        string
	Interval        time.Duration
	MaxRetries      int
	InterDispatch   time.Duration
	InscriptionTool string
}

// Scheduler runs the Worker's periodic tick. The in-flight set and the
// attempts map are process-local memory, owned exclusively by the
// Scheduler and never persisted: a restart forgets in-progress retries.
type Scheduler struct {
	cfg      Config
	monitor  *monitorClient
	executor *Executor
	limiter  *rate.Limiter

	// inFlight tracks txids with a subprocess currently running, the same
	// way the original node's worker.go tracks in-flight uncle/family sets
	// with a mapset.Set rather than a plain map+mutex.
	inFlight mapset.Set

	mu       sync.Mutex
	attempts map[string]int

	exitCh chan struct{}
}

// New builds a Scheduler bound to j, the journal completed mints are
// appended to.
func New(cfg Config, j *journal.Journal) *Scheduler {
	monitor := newMonitorClient(cfg.ServerURL, &http.Client{Timeout: 10 * time.Second})
	limit := rate.Every(cfg.InterDispatch)
	if cfg.InterDispatch <= 0 {
		limit = rate.Inf
	}
	return &Scheduler{
		cfg:      cfg,
		monitor:  monitor,
		executor: newExecutor(cfg.InscriptionTool, cfg.WalletName, cfg.FilePath, j, monitor),
		limiter:  rate.NewLimiter(limit, 1),
		inFlight: mapset.NewSet(),
		attempts: make(map[string]int),
		exitCh:   make(chan struct{}),
	}
}

// Start launches the scheduler loop in a new goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop terminates the scheduler loop. It does not wait for an in-flight
// tick; an orphaned subprocess on shutdown is expected and recovered by
// the next run rediscovering the txid through the pending list.
func (s *Scheduler) Stop() {
	close(s.exitCh)
}

// ActiveOperations lists txids currently in flight, for the /status
// introspection endpoint.
func (s *Scheduler) ActiveOperations() []string {
	out := make([]string, 0, s.inFlight.Cardinality())
	for _, v := range s.inFlight.ToSlice() {
		out = append(out, v.(string))
	}
	return out
}

// PendingRetry describes one txid's retry state for the /status endpoint.
type PendingRetry struct {
	TxID       string
	Attempts   int
	MaxRetries int
}

// PendingRetries lists every txid with at least one recorded attempt.
func (s *Scheduler) PendingRetries() []PendingRetry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingRetry, 0, len(s.attempts))
	for txid, n := range s.attempts {
		out = append(out, PendingRetry{TxID: txid, Attempts: n, MaxRetries: s.cfg.MaxRetries})
	}
	return out
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.exitCh:
			return
		}
	}
}

// tick fetches the pending queue and dispatches a handler for each item not
// already in flight or exhausted.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := s.monitor.PendingMints(ctx)
	if err != nil {
		if isConnRefused(err) {
			log.Error("mintworker: monitor connection refused, is the monitor running?", "err", err)
		} else {
			log.Warn("mintworker: failed to fetch pending mints, will retry next tick", "err", err)
		}
		return
	}

	for _, item := range pending {
		if s.inFlight.Contains(item.TxID) {
			continue
		}
		if s.attemptsFor(item.TxID) >= s.cfg.MaxRetries {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.dispatch(item)
	}
}

func (s *Scheduler) attemptsFor(txid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[txid]
}

// dispatch runs the Executor for one pending item, in-flight-guarded. It
// is synchronous within the tick: distinct txids execute sequentially by
// default, since the underlying wallet is typically a shared resource.
func (s *Scheduler) dispatch(item PendingMint) {
	if item.SenderAddress == "" {
		// The Monitor should never list a record with no sender as
		// pending, but poison it rather than crash if it somehow does.
		s.mu.Lock()
		s.attempts[item.TxID] = s.cfg.MaxRetries
		s.mu.Unlock()
		log.Error("mintworker: pending item has no sender address, poisoning", "txid", item.TxID)
		return
	}

	s.inFlight.Add(item.TxID)
	defer s.inFlight.Remove(item.TxID)

	ctx := context.Background()
	outcome := s.executor.Run(ctx, item.TxID, item.SenderAddress)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch outcome {
	case OutcomeMinted:
		delete(s.attempts, item.TxID)
	case OutcomeUnconfirmed:
		// leave attempts untouched: the mint already happened on-chain.
	case OutcomeFailed:
		s.attempts[item.TxID]++
		if s.attempts[item.TxID] >= s.cfg.MaxRetries {
			log.Error("mintworker: retries exhausted, txid will be skipped", "txid", item.TxID, "attempts", s.attempts[item.TxID])
		}
	}
}

func isConnRefused(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection refused")
}
