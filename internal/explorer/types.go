// Package explorer is the thin client for the upstream block-explorer HTTP
// API. The explorer itself is treated as an opaque JSON source and never
// validated for consensus correctness.
package explorer

// Tx is one transaction as reported by the explorer's address/tx listing
// or detail endpoints. Only the fields the ingestor needs are modeled.
type Tx struct {
	TxID   string `json:"txid"`
	Vout   []Vout `json:"vout"`
	Vin    []Vin  `json:"vin"`
	Status *TxStatus `json:"status"`
}

// TxStatus carries confirmation state. BlockHeight is nil when the
// upstream omits it (mempool, or a draft endpoint shape); it must be
// treated as absent, never coerced to zero.
type TxStatus struct {
	BlockHeight *int64 `json:"block_height"`
}

// Vout is one transaction output.
type Vout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// Vin is one transaction input; Prevout is nil when the response omits it.
// The detail endpoint carries it; the address listing may or may not.
type Vin struct {
	Prevout *Prevout `json:"prevout"`
}

// Prevout is the previous output an input spends.
type Prevout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
}
