package mintworker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/antron3000/bitbar-mint-coordinator/internal/journal"
	"github.com/ethereum/go-ethereum/log"
)

// Outcome classifies one Executor.Run attempt so the Scheduler knows how to
// update its attempts map.
type Outcome int

const (
	// OutcomeMinted: the subprocess produced a valid inscription id and the
	// Monitor acknowledged it. The attempts entry should be cleared.
	OutcomeMinted Outcome = iota
	// OutcomeUnconfirmed: the subprocess produced a valid inscription id
	// but the confirm POST failed. attempts must be left unchanged — the
	// inscription already happened on-chain, only the ledger hasn't caught
	// up. The Monitor still lists the txid as pending, so the next tick
	// dispatches it again and re-runs the whole mint, subprocess included.
	OutcomeUnconfirmed
	// OutcomeFailed: the subprocess failed, produced no parseable id, or
	// its stderr matched a known failure substring. attempts increments.
	OutcomeFailed
)

var stderrFailureSubstrings = []string{"insufficient funds", "error", "failed"}

// Executor invokes the external inscription tool for one txid at a time.
// It never runs two invocations concurrently for the same txid; the
// Scheduler's in-flight set is what enforces that across ticks.
type Executor struct {
	commandTemplate string
	walletName      string
	filePath        string
	journal         *journal.Journal
	monitor         *monitorClient
}

func newExecutor(commandTemplate, walletName, filePath string, j *journal.Journal, monitor *monitorClient) *Executor {
	return &Executor{
		commandTemplate: commandTemplate,
		walletName:      walletName,
		filePath:        filePath,
		journal:         j,
		monitor:         monitor,
	}
}

// Run executes the inscription tool for txid, destined to senderAddress,
// then journals and confirms on success.
func (e *Executor) Run(ctx context.Context, txid, senderAddress string) Outcome {
	commandLine := strings.NewReplacer(
		"{wallet}", e.walletName,
		"{file}", e.filePath,
		"{destination}", senderAddress,
	).Replace(e.commandTemplate)

	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		log.Error("mintworker: empty inscription command template")
		return OutcomeFailed
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runErr != nil {
		log.Warn("mintworker: inscription tool exited with an error", "txid", txid, "err", runErr, "stderr", stderr.String())
		return OutcomeFailed
	}

	if hasFailureSubstring(stderr.String()) {
		log.Warn("mintworker: inscription tool reported failure", "txid", txid, "stderr", stderr.String())
		return OutcomeFailed
	}

	inscriptionID, ok := parseInscriptionID(stdout.String())
	if !ok {
		log.Warn("mintworker: no inscription id in tool output", "txid", txid, "stdout", stdout.String())
		return OutcomeFailed
	}

	if err := e.journal.Append(journal.Entry{
		TxID:          txid,
		InscriptionID: inscriptionID,
		Destination:   senderAddress,
		TimestampMS:   journal.Now(),
	}); err != nil {
		log.Error("mintworker: failed to append journal entry, continuing", "txid", txid, "err", err)
	}

	if err := e.monitor.ConfirmMint(ctx, txid, inscriptionID); err != nil {
		log.Warn("mintworker: confirm POST failed, will retry next tick", "txid", txid, "err", err)
		return OutcomeUnconfirmed
	}

	log.Info("mintworker: mint confirmed", "txid", txid, "inscription_id", inscriptionID)
	return OutcomeMinted
}

func hasFailureSubstring(stderr string) bool {
	for _, sub := range stderrFailureSubstrings {
		if strings.Contains(stderr, sub) {
			return true
		}
	}
	return false
}

// parseInscriptionID tolerates two output shapes: a JSON object with
// inscriptions[0].id, or a plain "inscription_id: <value>" line.
func parseInscriptionID(stdout string) (string, bool) {
	var asJSON struct {
		Inscriptions []struct {
			ID string `json:"id"`
		} `json:"inscriptions"`
	}
	if err := json.Unmarshal([]byte(stdout), &asJSON); err == nil && len(asJSON.Inscriptions) > 0 && asJSON.Inscriptions[0].ID != "" {
		return asJSON.Inscriptions[0].ID, true
	}

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		const prefix = "inscription_id:"
		if strings.HasPrefix(line, prefix) {
			if id := strings.TrimSpace(strings.TrimPrefix(line, prefix)); id != "" {
				return id, true
			}
		}
	}
	return "", false
}
