package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeReserveRepay
	JournalTypeWithdrawal
	JournalTypeWithdrawalFromReserve
	JournalTypePremium
	JournalTypeTreasuryFee
	JournalTypeClaimPayout
	JournalTypeClaimFromReserve
	JournalTypeArbitrationFee
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeReserveRepay:
		return "reserve_repay"
	case JournalTypeWithdrawal:
		return "withdrawal"
	case JournalTypeWithdrawalFromReserve:
		return "withdrawal_from_reserve"
	case JournalTypePremium:
		return "premium"
	case JournalTypeTreasuryFee:
		return "treasury_fee"
	case JournalTypeClaimPayout:
		return "claim_payout"
	case JournalTypeClaimFromReserve:
		return "claim_from_reserve"
	case JournalTypeArbitrationFee:
		return "arbitration_fee"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID
	BatchID       uuid.UUID
	EventRef      string // idempotency key of the source command
	Sequence      int64
	DebitAccount  AccountKey // balance increases
	CreditAccount AccountKey // balance decreases
	AssetID       AssetID
	Amount        int64 // always positive
	JournalType   JournalType
	Timestamp     int64 // versioned input timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries produced by one command
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Stamp assigns the global sequence and source reference once the command
// has been accepted.
func (b *Batch) Stamp(sequence int64, eventRef string) {
	b.Sequence = sequence
	b.EventRef = eventRef
	for i := range b.Journals {
		b.Journals[i].Sequence = sequence
		b.Journals[i].EventRef = eventRef
	}
}

// Validate ensures the batch is well-formed. Each journal moves one positive
// amount from its credit account to its debit account, so every entry is
// balanced by construction.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s mixes assets", j.JournalID)
		}
	}

	return nil
}

// BatchBuilder accumulates the asset movements of one pool operation.
type BatchBuilder struct {
	batch *Batch
}

func NewBatchBuilder(timestampMicros int64) *BatchBuilder {
	return &BatchBuilder{batch: &Batch{
		BatchID:   uuid.New(),
		Timestamp: timestampMicros,
	}}
}

// Move records amount flowing from `from` to `to`. Zero amounts are skipped.
func (bb *BatchBuilder) Move(from, to AccountKey, amount int64, journalType JournalType) {
	if amount <= 0 {
		return
	}
	bb.batch.Journals = append(bb.batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       bb.batch.BatchID,
		DebitAccount:  to,
		CreditAccount: from,
		AssetID:       to.AssetID,
		Amount:        amount,
		JournalType:   journalType,
		Timestamp:     bb.batch.Timestamp,
	})
}

// Reset drops everything recorded so far.
func (bb *BatchBuilder) Reset() {
	bb.batch.Journals = bb.batch.Journals[:0]
}

// Len returns the number of journals recorded.
func (bb *BatchBuilder) Len() int {
	return len(bb.batch.Journals)
}

// Build returns the accumulated batch.
func (bb *BatchBuilder) Build() *Batch {
	return bb.batch
}
