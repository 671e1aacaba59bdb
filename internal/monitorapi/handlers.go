package monitorapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
)

// pendingMintView is the wire shape for one item of GET /api/pending-mints.
type pendingMintView struct {
	TxID          string `json:"txid"`
	Amount        int64  `json:"amount"`
	Timestamp     int64  `json:"timestamp"`
	SenderAddress string `json:"sender_address"`
}

func (s *Server) handlePendingMints(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pending, err := s.ledger.ListPending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list pending: "+err.Error())
		return
	}

	out := make([]pendingMintView, 0, len(pending))
	for _, rec := range pending {
		// Classify already guarantees SenderAddress is set for every
		// pending record, but this filter keeps the contract explicit.
		if rec.SenderAddress == nil || *rec.SenderAddress == "" {
			continue
		}
		out = append(out, pendingMintView{
			TxID:          rec.TxID,
			Amount:        rec.AmountSats,
			Timestamp:     rec.FirstSeenMS,
			SenderAddress: *rec.SenderAddress,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type confirmMintRequest struct {
	TxID          string `json:"txid"`
	InscriptionID string `json:"inscription_id"`
}

type confirmMintResponse struct {
	Success     bool       `json:"success"`
	Transaction recordView `json:"transaction"`
}

func (s *Server) handleConfirmMint(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req confirmMintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.TxID == "" {
		writeError(w, http.StatusBadRequest, "txid is required")
		return
	}

	result, err := s.ledger.Confirm(req.TxID, req.InscriptionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "confirm: "+err.Error())
		return
	}

	switch result {
	case ledger.ConfirmNotFound:
		writeError(w, http.StatusNotFound, "unknown txid")
		return
	case ledger.ConfirmAlreadyCompleted:
		writeError(w, http.StatusBadRequest, "transaction already completed")
		return
	}

	rec, ok, err := s.ledger.Get(req.TxID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reload confirmed record: "+err.Error())
		return
	}
	if !ok {
		// Confirm just succeeded against this txid; a missing row here
		// would mean a concurrent delete, which the core never performs.
		writeError(w, http.StatusInternalServerError, "confirmed record vanished")
		return
	}

	writeJSON(w, http.StatusOK, confirmMintResponse{Success: true, Transaction: toRecordView(rec)})
}

type statusResponse struct {
	TotalTransactions int   `json:"totalTransactions"`
	PendingMints      int   `json:"pendingMints"`
	UptimeMS          int64 `json:"uptime"`
	LastCheckMS       int64 `json:"lastCheck"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	counts, err := s.ledger.Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "counts: "+err.Error())
		return
	}

	var lastCheck int64
	if s.poller != nil {
		lastCheck = s.poller.LastCheckMS()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TotalTransactions: counts.Total,
		PendingMints:      counts.Pending,
		UptimeMS:          time.Since(s.startedAt).Milliseconds(),
		LastCheckMS:       lastCheck,
	})
}

func (s *Server) handleMinted(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	completed, err := s.ledger.ListCompleted()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list completed: "+err.Error())
		return
	}
	out := make([]recordView, 0, len(completed))
	for _, rec := range completed {
		out = append(out, toRecordView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// recordView is the full wire shape of a transaction record, used by
// confirm-mint's echo and the minted listing.
type recordView struct {
	TxID          string  `json:"txid"`
	FirstSeenMS   int64   `json:"first_seen_ms"`
	AmountSats    int64   `json:"amount_sats"`
	BlockHeight   *int64  `json:"block_height,omitempty"`
	SenderAddress *string `json:"sender_address,omitempty"`
	Status        string  `json:"status"`
	InscriptionID *string `json:"inscription_id,omitempty"`
	CompletedAtMS *int64  `json:"completed_at_ms,omitempty"`
}

func toRecordView(rec ledger.Record) recordView {
	return recordView{
		TxID:          rec.TxID,
		FirstSeenMS:   rec.FirstSeenMS,
		AmountSats:    rec.AmountSats,
		BlockHeight:   rec.BlockHeight,
		SenderAddress: rec.SenderAddress,
		Status:        string(rec.Status),
		InscriptionID: rec.InscriptionID,
		CompletedAtMS: rec.CompletedAtMS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("monitor API: failed to encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
