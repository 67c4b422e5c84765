package projection

import (
	"sync"

	"CoverPool/internal/event"
)

// ActivityEntry is one pool event as it concerns a single account.
type ActivityEntry struct {
	Sequence  int64  `json:"sequence"`
	Account   string `json:"account"` // checksummed hex address
	Kind      string `json:"kind"`    // pool event name
	TokenID   uint64 `json:"token_id,omitempty"`
	DisputeID uint64 `json:"dispute_id,omitempty"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// ActivityFromEvents derives per-account entries from the events of one
// logged command. Events that concern no single account are skipped.
func ActivityFromEvents(sequence, timestamp int64, events []event.PoolEvent) []ActivityEntry {
	var out []ActivityEntry
	for _, evt := range events {
		entry := ActivityEntry{Sequence: sequence, Kind: evt.EventName(), Timestamp: timestamp}
		switch e := evt.(type) {
		case event.LiquidityProvided:
			entry.Account, entry.Amount = e.Provider.Hex(), e.Amount
		case event.WithdrawalRequested:
			entry.Account, entry.Amount = e.Provider.Hex(), e.Shares
		case event.WithdrawalExecuted:
			entry.Account, entry.Amount = e.Provider.Hex(), e.Amount
		case event.CoveragePurchased:
			entry.Account, entry.Amount, entry.TokenID = e.Insured.Hex(), e.CoverAmount, e.TokenID
		case event.Evidence:
			entry.Account, entry.DisputeID = e.Party.Hex(), e.EvidenceGroupID
		case event.ClaimPaid:
			entry.Account, entry.Amount, entry.DisputeID = e.Claimant.Hex(), e.Amount, e.DisputeID
		default:
			continue
		}
		out = append(out, entry)
	}
	return out
}

// ActivityFeed keeps a bounded, queryable in-memory history of account
// activity. Older entries are evicted once capacity is reached; the event
// log remains the durable record.
type ActivityFeed struct {
	mu       sync.RWMutex
	entries  []ActivityEntry
	capacity int
}

func NewActivityFeed(capacity int) *ActivityFeed {
	if capacity <= 0 {
		capacity = 100_000
	}
	return &ActivityFeed{
		entries:  make([]ActivityEntry, 0, 64),
		capacity: capacity,
	}
}

// AddEntry records an activity entry
func (f *ActivityFeed) AddEntry(entry ActivityEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.entries) >= f.capacity {
		drop := len(f.entries) - f.capacity + 1
		f.entries = append(f.entries[:0], f.entries[drop:]...)
	}
	f.entries = append(f.entries, entry)
}

// QueryByAccount returns an account's most recent entries, newest first.
func (f *ActivityFeed) QueryByAccount(account string, limit int) []ActivityEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]ActivityEntry, 0)
	for i := len(f.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if f.entries[i].Account == account {
			result = append(result, f.entries[i])
		}
	}

	return result
}

// Len returns the number of retained entries.
func (f *ActivityFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}
