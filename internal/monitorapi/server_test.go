package monitorapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/stretchr/testify/require"
)

func addr(s string) *string { return &s }

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return New(":0", l, nil), l
}

func TestPendingMintsExcludesNotRequiredAndMissingSender(t *testing.T) {
	s, l := newTestServer(t)
	_, err := l.Insert(ledger.Record{TxID: "p1", FirstSeenMS: 1, AmountSats: 2000, SenderAddress: addr("s1"), Status: ledger.StatusPending})
	require.NoError(t, err)
	_, err = l.Insert(ledger.Record{TxID: "nr1", FirstSeenMS: 1, AmountSats: 10, Status: ledger.StatusNotRequired})
	require.NoError(t, err)
	_, err = l.Insert(ledger.Record{TxID: "p-nosender", FirstSeenMS: 1, AmountSats: 2000, Status: ledger.StatusPending})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/pending-mints", nil)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []pendingMintView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "p1", out[0].TxID)
	require.Equal(t, "s1", out[0].SenderAddress)
}

func TestConfirmMintHappyPath(t *testing.T) {
	s, l := newTestServer(t)
	_, err := l.Insert(ledger.Record{TxID: "tx1", FirstSeenMS: 1, AmountSats: 2000, SenderAddress: addr("s1"), Status: ledger.StatusPending})
	require.NoError(t, err)

	body, _ := json.Marshal(confirmMintRequest{TxID: "tx1", InscriptionID: "insc0"})
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out confirmMintResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(t, out.Success)
	require.Equal(t, "completed", out.Transaction.Status)
}

func TestConfirmMintMissingTxidIs400(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(confirmMintRequest{TxID: "", InscriptionID: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmMintUnknownTxidIs404(t *testing.T) {
	s, _ := newTestServer(t)
	body, _ := json.Marshal(confirmMintRequest{TxID: "ghost", InscriptionID: "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmMintAlreadyCompletedIs400(t *testing.T) {
	s, l := newTestServer(t)
	_, err := l.Insert(ledger.Record{TxID: "tx2", FirstSeenMS: 1, AmountSats: 2000, SenderAddress: addr("s1"), Status: ledger.StatusPending})
	require.NoError(t, err)
	_, err = l.Confirm("tx2", "first")
	require.NoError(t, err)

	body, _ := json.Marshal(confirmMintRequest{TxID: "tx2", InscriptionID: "second"})
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReportsCounts(t *testing.T) {
	s, l := newTestServer(t)
	_, err := l.Insert(ledger.Record{TxID: "p1", FirstSeenMS: 1, AmountSats: 2000, SenderAddress: addr("s1"), Status: ledger.StatusPending})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 1, out.TotalTransactions)
	require.Equal(t, 1, out.PendingMints)
}

func TestMintedListsNewestFirst(t *testing.T) {
	s, l := newTestServer(t)
	_, err := l.Insert(ledger.Record{TxID: "a", FirstSeenMS: 1, AmountSats: 2000, SenderAddress: addr("s"), Status: ledger.StatusPending})
	require.NoError(t, err)
	_, err = l.Confirm("a", "insc-a")
	require.NoError(t, err)
	_, err = l.Insert(ledger.Record{TxID: "b", FirstSeenMS: 2, AmountSats: 2000, SenderAddress: addr("s"), Status: ledger.StatusPending})
	require.NoError(t, err)
	// completed_at_ms has millisecond resolution; keep the two confirmations apart.
	time.Sleep(5 * time.Millisecond)
	_, err = l.Confirm("b", "insc-b")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/minted", nil)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []recordView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].TxID)
	require.Equal(t, "a", out[1].TxID)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
