package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/log"
)

// Client fetches transactions for a single watched address from an
// explorer's HTTP API. It never mutates state; the poller decides what to
// do with what it returns.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client with the given base URL and per-call timeout. No
// default is applied here; a zero timeout means no per-call limit.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ValidateAddress rejects a watched-address configuration value that isn't
// decodable on the given network, catching typos before the first poll
// tick rather than failing silently against the explorer.
func ValidateAddress(addr string, params *chaincfg.Params) error {
	if _, err := btcutil.DecodeAddress(addr, params); err != nil {
		return fmt.Errorf("invalid bitcoin address %q: %w", addr, err)
	}
	return nil
}

// AddressTxs fetches the transaction list for addr: GET {base}/address/{addr}/txs.
// A non-2xx status, timeout, or connection failure is returned as an error;
// callers must abort the current tick without mutating state.
func (c *Client) AddressTxs(ctx context.Context, addr string) ([]Tx, error) {
	endpoint := fmt.Sprintf("%s/address/%s/txs", c.baseURL, url.PathEscape(addr))
	var txs []Tx
	if err := c.getJSON(ctx, endpoint, &txs); err != nil {
		return nil, fmt.Errorf("fetch address txs: %w", err)
	}
	return txs, nil
}

// Tx fetches the full detail for one transaction: GET {base}/tx/{txid}.
// The ingestor uses this for the sender-address lookup when the listing
// endpoint didn't carry prevout data.
func (c *Client) Tx(ctx context.Context, txid string) (Tx, error) {
	endpoint := fmt.Sprintf("%s/tx/%s", c.baseURL, url.PathEscape(txid))
	var tx Tx
	if err := c.getJSON(ctx, endpoint, &tx); err != nil {
		return Tx{}, fmt.Errorf("fetch tx detail: %w", err)
	}
	return tx, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("upstream explorer returned non-2xx", "url", endpoint, "status", resp.StatusCode)
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
