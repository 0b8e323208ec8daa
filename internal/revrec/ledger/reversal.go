package ledger

import (
	"time"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Reverse builds the entry that cancels original. The original stays untouched;
// prior must contain every entry of the contract so double reversals are caught.
func (p *Poster) Reverse(original revrec.LedgerEntry, prior []revrec.LedgerEntry, at time.Time, posted bool) (revrec.LedgerEntry, error) {
	if original.IsReversed {
		return revrec.LedgerEntry{}, revrec.Invalid("entry_id", "entry %s is itself a reversal", original.ID)
	}
	if AlreadyReversed(prior, original.ID) {
		return revrec.LedgerEntry{}, revrec.Invalid("entry_id", "entry %s already reversed", original.ID)
	}
	if err := ValidateEntry(original); err != nil {
		return revrec.LedgerEntry{}, err
	}

	now := p.now()
	reversal := original
	reversal.ID = p.newID()
	reversal.DebitAccount = original.CreditAccount
	reversal.CreditAccount = original.DebitAccount
	reversal.EntryDate = at
	reversal.IsReversed = true
	reversal.ReversedEntryID = original.ID
	reversal.Memo = "reversal of " + original.ID
	reversal.CreatedAt = now
	reversal.IsPosted = posted
	reversal.PostedAt = nil
	if posted {
		reversal.PostedAt = &now
	}

	all := append(append([]revrec.LedgerEntry{}, prior...), reversal)
	if err := CheckPosition(all, p.accounts); err != nil {
		return revrec.LedgerEntry{}, err
	}
	return reversal, nil
}

// AlreadyReversed reports whether entries contain a reversal of id.
func AlreadyReversed(entries []revrec.LedgerEntry, id string) bool {
	for _, e := range entries {
		if e.IsReversed && e.ReversedEntryID == id {
			return true
		}
	}
	return false
}
