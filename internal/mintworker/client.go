package mintworker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PendingMint mirrors the Monitor's GET /api/pending-mints item shape.
type PendingMint struct {
	TxID          string `json:"txid"`
	Amount        int64  `json:"amount"`
	Timestamp     int64  `json:"timestamp"`
	SenderAddress string `json:"sender_address"`
}

// monitorClient talks to the Monitor's HTTP API. It is the Worker's only
// way to read or mutate ledger state.
type monitorClient struct {
	baseURL string
	http    *http.Client
}

func newMonitorClient(baseURL string, httpClient *http.Client) *monitorClient {
	return &monitorClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// PendingMints fetches the current pending-mint queue.
func (c *monitorClient) PendingMints(ctx context.Context) ([]PendingMint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/pending-mints", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monitor returned status %d", resp.StatusCode)
	}
	var out []PendingMint
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode pending mints: %w", err)
	}
	return out, nil
}

// ConfirmMint reports a completed inscription back to the Monitor.
func (c *monitorClient) ConfirmMint(ctx context.Context, txid, inscriptionID string) error {
	body, err := json.Marshal(map[string]string{"txid": txid, "inscription_id": inscriptionID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/confirm-mint", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor confirm returned status %d", resp.StatusCode)
	}
	return nil
}
