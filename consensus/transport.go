package consensus

import (
	"sync"
	"sync/atomic"

	"github.com/lattice-network/lattice/lib"
)

// VoteHandler consumes validated vote bundles on behalf of the consensus core
type VoteHandler interface {
	HandleVotes(votes VoteBundle)
}

// registration is the subscriber record; holding it behind an atomic pointer
// replaces any lifetime coupling between the transport and its subscriber -
// resolution is one non-blocking load with a nil check
type registration struct {
	handler VoteHandler
}

// VoteTransport disseminates vote bundles between validator peers: outbound
// sends are fire-and-forget through the connection-handle factory, inbound
// bundles are validated at the boundary and delivered to at most one subscriber
type VoteTransport struct {
	mu      sync.Mutex // guards stopped across the check and the dispatch decision
	stopped bool       // set once by Stop, never cleared

	factory lib.ClientFactory            // resolves per-peer vote connections
	sub     atomic.Pointer[registration] // the single subscriber record, last writer wins
	metrics *lib.Metrics
	log     lib.LoggerI
}

// NewVoteTransport() builds a transport around a connection-handle factory
func NewVoteTransport(factory lib.ClientFactory, metrics *lib.Metrics, log lib.LoggerI) *VoteTransport {
	return &VoteTransport{factory: factory, metrics: metrics, log: log}
}

// SendVotes() serializes the bundle and submits it toward the peer. The call is
// fire-and-forget: it never blocks on network i/o and never observes the remote
// outcome. Resolution failures are logged and dropped - retransmission belongs
// to the round timeout above this layer
func (t *VoteTransport) SendVotes(to *lib.PeerAddress, votes VoteBundle) {
	// the stop check and the dispatch decision share one mutex hold so a
	// dispatch cannot race a concurrent Stop
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		t.log.Warnf("dropping %d vote(s) to %s: transport is stopped", len(votes), to.ID())
		return
	}
	bz, err := lib.Marshal(&State{Votes: votes})
	if err != nil {
		t.log.Errorf("vote bundle encode failed: %s", err.Error())
		return
	}
	conn, err := t.factory.Resolve(to, lib.TopicVote)
	if err != nil {
		t.log.Errorf("unable to resolve a vote connection to %s: %s", to.ID(), err.Error())
		return
	}
	if err = conn.Submit(bz); err != nil {
		t.log.Errorf("vote submit to %s failed: %s", to.ID(), err.Error())
		return
	}
	t.metrics.CountVoteSend()
	t.log.Debugf("sent %d vote(s) to %s", len(votes), to.ID())
}

// Receive() handles a State submitted by a remote peer: decode, skip malformed
// votes, reject empty or mixed-round bundles, deliver the rest to the
// subscriber. The returned error maps to the ack code reported to the sender
// via AckCodeFor; a missing subscriber is still a structural success to the remote
func (t *VoteTransport) Receive(data []byte) (delivered int, err lib.ErrorI) {
	state := new(State)
	if err = lib.Unmarshal(data, state); err != nil {
		t.metrics.CountBundleRejected("undecodable")
		return 0, err
	}
	bundle := make(VoteBundle, 0, len(state.Votes))
	for _, vote := range state.Votes {
		if e := vote.CheckBasic(); e != nil {
			t.log.Warnf("skipping vote from peer: %s", e.Error())
			continue
		}
		bundle = append(bundle, vote)
	}
	if err = bundle.Check(); err != nil {
		switch err.Code() {
		case lib.CodeEmptyVoteBundle:
			t.metrics.CountBundleRejected("empty")
		case lib.CodeMixedRounds:
			t.metrics.CountBundleRejected("mixed_rounds")
		}
		return 0, err
	}
	reg := t.sub.Load()
	if reg == nil {
		t.log.Error(ErrNoSubscriber().Error())
		return 0, nil
	}
	reg.handler.HandleVotes(bundle)
	t.metrics.CountVotesDelivered(len(bundle))
	t.log.Debugf("delivered %d vote(s) for round %s", len(bundle), bundle[0].Round.String())
	return len(bundle), nil
}

// Subscribe() registers the single notification target; a later registration
// silently supersedes the prior one
func (t *VoteTransport) Subscribe(h VoteHandler) {
	if h == nil {
		t.sub.Store(nil)
		return
	}
	t.sub.Store(&registration{handler: h})
}

// Unsubscribe() clears the registration record
func (t *VoteTransport) Unsubscribe() {
	t.sub.Store(nil)
}

// Stop() permanently disables outbound sends; dispatches already queued are not
// recalled
func (t *VoteTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.log.Info("vote transport stopped")
}
