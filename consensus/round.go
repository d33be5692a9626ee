package consensus

import "fmt"

// Round identifies one proposal slot: how many blocks the ledger has finalized
// and how many failed attempts the current slot has seen. Value type, threaded
// through pure functions, never owned by any long-lived entity
type Round struct {
	BlockRound  uint64 `json:"blockRound"`  // count of finalized blocks before this slot
	RejectRound uint64 `json:"rejectRound"` // count of failed attempts at this slot
}

// NextCommitRound() returns the round after a commit: a commit always starts a
// fresh block round with the reject counter cleared
func NextCommitRound(r Round) Round {
	return Round{BlockRound: r.BlockRound + 1, RejectRound: 0}
}

// NextRejectRound() returns the round after a reject or an empty decision: the
// same block round with the reject counter advanced
func NextRejectRound(r Round) Round {
	return Round{BlockRound: r.BlockRound, RejectRound: r.RejectRound + 1}
}

// Equals() compares two rounds by value
func (r Round) Equals(o Round) bool {
	return r.BlockRound == o.BlockRound && r.RejectRound == o.RejectRound
}

// Less() orders rounds by block round first, reject round second
func (r Round) Less(o Round) bool {
	if r.BlockRound != o.BlockRound {
		return r.BlockRound < o.BlockRound
	}
	return r.RejectRound < o.RejectRound
}

// String() formats the round for logs
func (r Round) String() string {
	return fmt.Sprintf("(%d, %d)", r.BlockRound, r.RejectRound)
}
