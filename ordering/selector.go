package ordering

import (
	"github.com/lattice-network/lattice/consensus"
	"github.com/lattice-network/lattice/lib"
)

/* This file contains the role table: which peer serves which upcoming round, derived
from the committed hash window and the synchronizer's latest decision */

// Role names one duty a peer holds for the rounds ahead. Consumers receive batch
// traffic for a specific future round; the issuer answers the proposal request
// for the round being entered
type Role int

const (
	RejectRejectConsumer Role = iota // consumer if this round rejects and the next rejects again
	RejectCommitConsumer             // consumer if this round rejects, then commits
	CommitRejectConsumer             // consumer if this round commits, then rejects
	CommitCommitConsumer             // consumer if this round commits and the next commits again
	Issuer                           // serves the proposal for the round being entered

	roleCount
)

// String() returns the log name of the role
func (r Role) String() string {
	switch r {
	case RejectRejectConsumer:
		return "reject_reject"
	case RejectCommitConsumer:
		return "reject_commit"
	case CommitRejectConsumer:
		return "commit_reject"
	case CommitCommitConsumer:
		return "commit_commit"
	case Issuer:
		return "issuer"
	default:
		return "unknown"
	}
}

// window selects which hash of the triple seeds a shuffle; older hashes cover
// rounds closer to the present
type window int

const (
	currentWindow   window = iota // the oldest hash, rounds at the current block height
	nextWindow                    // rounds one commit ahead
	afterNextWindow               // rounds two commits ahead

	windowCount
)

const (
	firstRejectRound   = 0 // reject counter of a freshly entered block round
	rejectRejectOffset = 2 // distance of the reject-reject consumer past the entered round
)

// CurrentPeers is one complete role assignment, indexed by Role
type CurrentPeers [roleCount]*lib.PeerAddress

// Consumers() returns the four batch consumer assignments, in role order
func (c CurrentPeers) Consumers() []*lib.PeerAddress {
	return c[:Issuer]
}

// RoundPeerSelector turns synchronizer decisions into role assignments. Stateless
// apart from its logger; every call derives the full table from its inputs
type RoundPeerSelector struct {
	log lib.LoggerI
}

// NewRoundPeerSelector() creates a selector with the given logger
func NewRoundPeerSelector(log lib.LoggerI) *RoundPeerSelector {
	return &RoundPeerSelector{log: log}
}

// SelectPeers() advances the round per the decision outcome and assigns the five
// roles among the ledger peers. Each window of the triple is shuffled once; a
// role at reject round r within a window maps to the shuffled peer r modulo the
// ledger size. Fails only when the decision carries no peers at all
func (s *RoundPeerSelector) SelectPeers(event *consensus.SyncEvent, triple HashTriple) (peers CurrentPeers, next consensus.Round, err lib.ErrorI) {
	ledger := event.LedgerPeers
	if len(ledger) == 0 {
		return peers, next, ErrEmptyPeerList()
	}
	// a reject and an empty decision both burn an attempt at the same height
	if event.Outcome == consensus.Commit {
		next = consensus.NextCommitRound(event.Round)
	} else {
		next = consensus.NextRejectRound(event.Round)
	}
	// one shuffle per window, each seeded by its hash of the triple
	var perms [windowCount][]int
	for w := currentWindow; w < windowCount; w++ {
		if perms[w], err = Permutation(triple[w], len(ledger)); err != nil {
			return peers, next, err
		}
	}
	getPeer := func(w window, rejectRound uint64) *lib.PeerAddress {
		perm := perms[w]
		return ledger[perm[rejectRound%uint64(len(perm))]]
	}
	peers[RejectRejectConsumer] = getPeer(currentWindow, next.RejectRound+rejectRejectOffset)
	peers[RejectCommitConsumer] = getPeer(nextWindow, firstRejectRound)
	peers[CommitRejectConsumer] = getPeer(nextWindow, firstRejectRound+1)
	peers[CommitCommitConsumer] = getPeer(afterNextWindow, firstRejectRound)
	// the issuer is looked up at the decided round's own attempt, in the current window
	peers[Issuer] = getPeer(currentWindow, event.Round.RejectRound)
	s.log.Debugf("Round %s roles: issuer=%s rr=%s rc=%s cr=%s cc=%s", next.String(),
		peers[Issuer].ID(), peers[RejectRejectConsumer].ID(), peers[RejectCommitConsumer].ID(),
		peers[CommitRejectConsumer].ID(), peers[CommitCommitConsumer].ID())
	return peers, next, nil
}
