package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func newCtx() context.Context { return context.Background() }

func TestValidateAddressRejectsGarbage(t *testing.T) {
	err := ValidateAddress("not-a-bitcoin-address", &chaincfg.MainNetParams)
	require.Error(t, err)
}

func TestValidateAddressAcceptsWellFormed(t *testing.T) {
	err := ValidateAddress("1BoatSLRHtKNngkdXEeobR76b53LETtpyT", &chaincfg.MainNetParams)
	require.NoError(t, err)
}

func TestAddressTxsDecodesListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/address/abc/txs", r.URL.Path)
		w.Write([]byte(`[{"txid":"t1","vout":[{"scriptpubkey_address":"abc","value":1000}]}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	txs, err := c.AddressTxs(newCtx(), "abc")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "t1", txs[0].TxID)
	require.Equal(t, int64(1000), txs[0].Vout[0].Value)
}

func TestAddressTxsReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.AddressTxs(newCtx(), "abc")
	require.Error(t, err)
}

func TestTxDecodesDetailWithPrevout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tx/t1", r.URL.Path)
		w.Write([]byte(`{"txid":"t1","vin":[{"prevout":{"scriptpubkey_address":"sender1"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tx, err := c.Tx(newCtx(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tx.Vin[0].Prevout)
	require.Equal(t, "sender1", tx.Vin[0].Prevout.ScriptPubKeyAddress)
}

func TestBlockHeightAbsentDecodesAsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"txid":"t1","status":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tx, err := c.Tx(newCtx(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tx.Status)
	require.Nil(t, tx.Status.BlockHeight)
}
