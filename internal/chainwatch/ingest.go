package chainwatch

import (
	"context"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/explorer"
	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/ethereum/go-ethereum/log"
)

// ingestOne normalizes a single upstream transaction and persists it:
//
//  1. already-known txid -> no-op (idempotence anchor)
//  2. sum outputs paying the watched address
//  3. zero-amount tx -> skip, not persisted
//  4. resolve sender address, falling back to the detail endpoint
//  5. classify pending vs not_required
//  6. insert atomically; a primary-key conflict is treated as already-ingested
func (p *Poller) ingestOne(ctx context.Context, utx explorer.Tx) error {
	if utx.TxID == "" {
		log.Warn("poller: upstream transaction missing txid, skipping")
		return nil
	}

	if _, ok, err := p.ledger.Get(utx.TxID); err != nil {
		return err
	} else if ok {
		return nil
	}

	var amount int64
	for _, vout := range utx.Vout {
		if vout.ScriptPubKeyAddress == p.watchedAddr {
			amount += vout.Value
		}
	}
	if amount == 0 {
		return nil
	}

	sender := p.resolveSender(ctx, utx)

	var blockHeight *int64
	if utx.Status != nil {
		blockHeight = utx.Status.BlockHeight
	}

	rec := ledger.Record{
		TxID:          utx.TxID,
		FirstSeenMS:   time.Now().UnixMilli(),
		AmountSats:    amount,
		BlockHeight:   blockHeight,
		SenderAddress: sender,
		Status:        ledger.Classify(amount, sender),
	}

	inserted, err := p.ledger.Insert(rec)
	if err != nil {
		return err
	}
	if inserted {
		log.Info("ingested transaction", "txid", rec.TxID, "amount_sats", rec.AmountSats, "status", rec.Status)
	}
	return nil
}

// resolveSender reads the sender address from the first input carrying a
// prevout. If the listing response didn't include vin prevouts, it makes
// one bounded detail-endpoint call; on any failure it returns nil rather
// than failing the whole ingestion — the record still gets persisted,
// just as not_required, since classification requires a sender address.
func (p *Poller) resolveSender(ctx context.Context, utx explorer.Tx) *string {
	if addr := firstInputAddress(utx.Vin); addr != nil {
		return addr
	}

	detailCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_ = ctx // the outer tick context is not used here; this call gets its own budget

	detail, err := p.explorer.Tx(detailCtx, utx.TxID)
	if err != nil {
		log.Debug("poller: sender lookup failed, leaving sender absent", "txid", utx.TxID, "err", err)
		return nil
	}
	return firstInputAddress(detail.Vin)
}

func firstInputAddress(vin []explorer.Vin) *string {
	for _, in := range vin {
		if in.Prevout != nil && in.Prevout.ScriptPubKeyAddress != "" {
			addr := in.Prevout.ScriptPubKeyAddress
			return &addr
		}
	}
	return nil
}
