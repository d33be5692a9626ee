package consensus

import (
	"bytes"
	"fmt"

	"github.com/lattice-network/lattice/lib"
)

// SyncOutcome is the synchronizer's verdict on the previous round
type SyncOutcome int

const (
	Commit  SyncOutcome = iota // the previous round finalized a block
	Reject                     // the previous round failed to agree on a block
	Nothing                    // the previous round reached no decision at all
)

// String() returns the log name of the outcome
func (o SyncOutcome) String() string {
	switch o {
	case Commit:
		return "commit"
	case Reject:
		return "reject"
	case Nothing:
		return "nothing"
	}
	return fmt.Sprintf("unknown(%d)", int(o))
}

// SyncEvent is one synchronizer decision: the round it was made for, its outcome,
// and the authoritative validator list at that moment. Immutable after creation
// and consumed exactly once by the round peer selector
type SyncEvent struct {
	Round       Round              // the round the decision applies to
	Outcome     SyncOutcome        // how the round ended
	LedgerPeers []*lib.PeerAddress // the validator set, most recent list wins
}

// Vote is one validator's signed opinion for one round
type Vote struct {
	BlockHash       []byte // digest of the block the vote refers to
	ProposalHash    []byte // digest of the ordering proposal, may be empty
	Signature       []byte // signature over the vote payload
	SignerPublicKey []byte // identity of the voting validator
	Round           Round  // the round the vote belongs to
}

// CheckBasic() statelessly validates the vote's shape; signature verification
// belongs to the consensus core above this layer
func (v *Vote) CheckBasic() lib.ErrorI {
	if v == nil {
		return ErrMalformedVote("nil vote")
	}
	if len(v.BlockHash) == 0 {
		return ErrMalformedVote("missing block hash")
	}
	if len(v.Signature) == 0 {
		return ErrMalformedVote("missing signature")
	}
	if len(v.SignerPublicKey) == 0 {
		return ErrMalformedVote("missing signer public key")
	}
	return nil
}

// SameIdentity() reports whether two votes claim the same round identity: the
// round numbers plus the block/proposal hash pair
func (v *Vote) SameIdentity(o *Vote) bool {
	return v.Round.Equals(o.Round) &&
		bytes.Equal(v.BlockHash, o.BlockHash) &&
		bytes.Equal(v.ProposalHash, o.ProposalHash)
}

// VoteBundle is an ordered batch of votes for one round, disseminated as a unit
type VoteBundle []*Vote

// Check() validates the bundle boundary conditions: it must be non-empty and
// every vote must share the first vote's round identity
func (b VoteBundle) Check() lib.ErrorI {
	if len(b) == 0 {
		return ErrEmptyVoteBundle()
	}
	for _, vote := range b[1:] {
		if !vote.SameIdentity(b[0]) {
			return ErrMixedRoundBundle()
		}
	}
	return nil
}

// State is the wire form of a vote bundle
type State struct {
	Votes VoteBundle
}

// Ack codes reported back to the sender of a State; the original design reused a
// transport cancellation code for content failures, these keep the two apart
const (
	AckOK          uint32 = 0 // accepted, or structurally valid but no live subscriber
	AckEmptyBundle uint32 = 1 // no decodable votes survived validation
	AckMixedRounds uint32 = 2 // votes spanned more than one round identity
)

// Ack is the remote acceptance signal for a State submission
type Ack struct {
	Code uint32
}

// AckCodeFor() maps a Receive error to the code reported back to the remote
// peer; any structural failure leaves no usable votes, so unknown errors report
// as an empty bundle
func AckCodeFor(err lib.ErrorI) uint32 {
	if err == nil {
		return AckOK
	}
	if err.Module() == lib.ConsensusModule && err.Code() == lib.CodeMixedRounds {
		return AckMixedRounds
	}
	return AckEmptyBundle
}
