package validation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// AccountingEntry is one append-only record keyed by request_id, pairing
// the DataPoint served with the validation outcome it fed into.
type AccountingEntry struct {
	RequestID string
	DataPoint DataPoint
	Result    ValidationResult
}

// AccountingTracker is the append-only ledger of every value the fabric
// serves, per spec §4.4. It never mutates or removes an entry once
// written; Record assigns a fresh uuid-based key whenever dp carries no
// RequestID of its own.
type AccountingTracker struct {
	mu      sync.Mutex
	entries map[string]AccountingEntry
	order   []string
}

func NewAccountingTracker() *AccountingTracker {
	return &AccountingTracker{entries: make(map[string]AccountingEntry)}
}

// Record appends a new entry, generating a request id if dp has none.
func (t *AccountingTracker) Record(dp DataPoint, result ValidationResult) string {
	id := dp.RequestID
	if id == "" {
		id = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		id = fmt.Sprintf("%s-%s", id, uuid.NewString())
	}
	t.entries[id] = AccountingEntry{RequestID: id, DataPoint: dp, Result: result}
	t.order = append(t.order, id)
	return id
}

// Get looks up an entry by request id.
func (t *AccountingTracker) Get(requestID string) (AccountingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	return e, ok
}

// Statistics summarizes the ledger for health reporting, per spec §4.4's
// accounting requirement.
type Statistics struct {
	Total       int
	ByLayer     map[Layer]int
	Unaccounted int // entries whose result.Passed is false
}

func (t *AccountingTracker) Statistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := Statistics{ByLayer: make(map[Layer]int)}
	for _, id := range t.order {
		e := t.entries[id]
		stats.Total++
		stats.ByLayer[e.DataPoint.Layer]++
		if !e.Result.Passed {
			stats.Unaccounted++
		}
	}
	return stats
}

// Export serializes the ledger as newline-delimited JSON, in insertion
// order, for offline audit.
func (t *AccountingTracker) Export() ([]byte, error) {
	t.mu.Lock()
	ids := append([]string(nil), t.order...)
	entries := make([]AccountingEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, t.entries[id])
	}
	t.mu.Unlock()

	var out []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("validation: export entry %s: %w", e.RequestID, err)
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}
