package ledger

// Status is the lifecycle state of a transaction record. Transitions are
// monotonic: not_required is terminal; pending may transition to completed
// exactly once. Downgrades are forbidden.
type Status string

const (
	StatusNotRequired Status = "not_required"
	StatusPending     Status = "pending"
	StatusCompleted   Status = "completed"
)

// Record is the ledger's only persistent entity: one row per observed txid.
type Record struct {
	TxID           string
	FirstSeenMS    int64
	AmountSats     int64
	BlockHeight    *int64
	SenderAddress  *string
	Status         Status
	InscriptionID  *string
	CompletedAtMS  *int64
}

// ConfirmResult is the outcome of a Confirm call.
type ConfirmResult int

const (
	ConfirmOK ConfirmResult = iota
	ConfirmNotFound
	ConfirmAlreadyCompleted
)

// Counts summarizes the ledger for the status endpoint.
type Counts struct {
	Total   int
	Pending int
}

// EligibilityThresholdSats is the minimum received amount, in satoshis, for
// a transaction to be classified pending.
const EligibilityThresholdSats = 1641

// Classify applies invariants 3 and 4: a record is pending iff it clears
// the eligibility threshold and carries a sender address; otherwise it is
// not_required.
func Classify(amountSats int64, senderAddress *string) Status {
	if amountSats >= EligibilityThresholdSats && senderAddress != nil && *senderAddress != "" {
		return StatusPending
	}
	return StatusNotRequired
}
