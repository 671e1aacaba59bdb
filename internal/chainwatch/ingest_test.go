package chainwatch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/explorer"
	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/stretchr/testify/require"
)

const watched = "bc1qwatchedaddress"

func newTestPoller(t *testing.T, handler http.HandlerFunc) (*Poller, *ledger.Ledger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	client := explorer.New(srv.URL, time.Second)
	return New(client, l, watched, time.Hour, time.Second), l
}

func txPayload(txs []explorer.Tx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(txs)
	}
}

func TestIngestBelowThresholdIsNotRequired(t *testing.T) {
	sender := "sender-addr"
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-below",
		Vout: []explorer.Vout{{ScriptPubKeyAddress: watched, Value: 1640}},
		Vin:  []explorer.Vin{{Prevout: &explorer.Prevout{ScriptPubKeyAddress: sender}}},
	}}))

	p.tick()

	rec, ok, err := l.Get("tx-below")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ledger.StatusNotRequired, rec.Status)
	require.Equal(t, int64(1640), rec.AmountSats)
}

func TestIngestEligibleWithSenderIsPending(t *testing.T) {
	sender := "sender-addr"
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-eligible",
		Vout: []explorer.Vout{{ScriptPubKeyAddress: watched, Value: 2000}},
		Vin:  []explorer.Vin{{Prevout: &explorer.Prevout{ScriptPubKeyAddress: sender}}},
	}}))

	p.tick()

	rec, ok, err := l.Get("tx-eligible")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ledger.StatusPending, rec.Status)
	require.NotNil(t, rec.SenderAddress)
	require.Equal(t, sender, *rec.SenderAddress)
}

func TestIngestEligibleNoSenderIsNotRequired(t *testing.T) {
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-no-sender",
		Vout: []explorer.Vout{{ScriptPubKeyAddress: watched, Value: 2000}},
		Vin:  []explorer.Vin{{Prevout: nil}},
	}}))

	p.tick()

	rec, ok, err := l.Get("tx-no-sender")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ledger.StatusNotRequired, rec.Status)
}

func TestIngestDuplicateOutputsAreSummed(t *testing.T) {
	sender := "sender-addr"
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-dup",
		Vout: []explorer.Vout{
			{ScriptPubKeyAddress: watched, Value: 1000},
			{ScriptPubKeyAddress: watched, Value: 1000},
		},
		Vin: []explorer.Vin{{Prevout: &explorer.Prevout{ScriptPubKeyAddress: sender}}},
	}}))

	p.tick()

	rec, ok, err := l.Get("tx-dup")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2000), rec.AmountSats)
	require.Equal(t, ledger.StatusPending, rec.Status)
}

func TestIngestZeroAmountIsSkippedNotPersisted(t *testing.T) {
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-unrelated",
		Vout: []explorer.Vout{{ScriptPubKeyAddress: "some-other-address", Value: 5000}},
	}}))

	p.tick()

	_, ok, err := l.Get("tx-unrelated")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngestIsIdempotentAcrossTicks(t *testing.T) {
	sender := "sender-addr"
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID: "tx-repeat",
		Vout: []explorer.Vout{{ScriptPubKeyAddress: watched, Value: 2000}},
		Vin:  []explorer.Vin{{Prevout: &explorer.Prevout{ScriptPubKeyAddress: sender}}},
	}}))

	p.tick()
	p.tick()

	pending, err := l.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestIngestAbsentBlockHeightNeverCoercedToZero(t *testing.T) {
	sender := "sender-addr"
	p, l := newTestPoller(t, txPayload([]explorer.Tx{{
		TxID:   "tx-mempool",
		Vout:   []explorer.Vout{{ScriptPubKeyAddress: watched, Value: 2000}},
		Vin:    []explorer.Vin{{Prevout: &explorer.Prevout{ScriptPubKeyAddress: sender}}},
		Status: &explorer.TxStatus{BlockHeight: nil},
	}}))

	p.tick()

	rec, ok, err := l.Get("tx-mempool")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, rec.BlockHeight)
	require.Equal(t, ledger.StatusPending, rec.Status)
}

func TestTickAbortsOnUpstreamFailureWithoutMutatingState(t *testing.T) {
	p, l := newTestPoller(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	p.tick()

	counts, err := l.Counts()
	require.NoError(t, err)
	require.Equal(t, 0, counts.Total)
}
