package chainwatch

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLastCheckMSAdvancesAfterTick(t *testing.T) {
	p, _ := newTestPoller(t, txPayload(nil))
	require.Equal(t, int64(0), p.LastCheckMS())
	p.tick()
	require.Greater(t, p.LastCheckMS(), int64(0))
}

func TestStartStopDoesNotPanic(t *testing.T) {
	p, _ := newTestPoller(t, txPayload(nil))
	p.interval = 5 * time.Millisecond
	p.Start()
	time.Sleep(30 * time.Millisecond)
	p.Stop()
}

func TestOverlappingTicksAreSkippedNotQueued(t *testing.T) {
	var inFlight int32
	var maxObservedConcurrency int32

	p, _ := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&maxObservedConcurrency) {
			atomic.StoreInt32(&maxObservedConcurrency, n)
		}
		time.Sleep(40 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Write([]byte(`[]`))
	})
	p.interval = 5 * time.Millisecond

	p.Start()
	time.Sleep(120 * time.Millisecond)
	p.Stop()

	require.LessOrEqual(t, atomic.LoadInt32(&maxObservedConcurrency), int32(1))
}
