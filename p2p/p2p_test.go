package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

type testNode struct {
	*P2P
	key crypto.PrivateKeyI
	pub []byte
}

// newTestNode() starts a node on an ephemeral localhost port
func newTestNode(t *testing.T) (n testNode) {
	t.Helper()
	key, err := crypto.NewEd25519PrivateKey()
	require.NoError(t, err)
	config := lib.DefaultP2PConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.DialBackoffMaxS = 2
	n = testNode{P2P: New(key, config, nil, lib.NewNullLogger()), key: key, pub: key.PublicKey().Bytes()}
	require.Nil(t, n.Start())
	t.Cleanup(n.Close)
	return
}

// address() returns the dialable identity of the node
func (n testNode) address() *lib.PeerAddress {
	return &lib.PeerAddress{PublicKey: n.pub, NetAddress: n.Addr().String()}
}

type delivery struct {
	sender  *lib.PeerAddress
	payload []byte
}

// collect() registers a handler that funnels the topic into a channel
func collect(node testNode, topic lib.Topic) chan delivery {
	inbox := make(chan delivery, 16)
	node.RegisterHandler(topic, func(sender *lib.PeerAddress, payload []byte) {
		inbox <- delivery{sender, payload}
	})
	return inbox
}

func awaitDelivery(t *testing.T, inbox chan delivery) delivery {
	t.Helper()
	select {
	case d := <-inbox:
		return d
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for delivery")
		return delivery{}
	}
}

func TestResolveDialsAndDelivers(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	votes := collect(b, lib.TopicVote)
	// the first resolve dials the peer on demand
	client, err := a.Resolve(b.address(), lib.TopicVote)
	require.Nil(t, err)
	require.Nil(t, client.Submit([]byte("ballot")))
	got := awaitDelivery(t, votes)
	require.Equal(t, a.pub, got.sender.PublicKey)
	require.Equal(t, []byte("ballot"), got.payload)
	// both sides now hold the connection
	require.True(t, a.peers.Has(b.pub))
	require.Eventually(t, func() bool { return b.peers.Has(a.pub) }, testTimeout, 10*time.Millisecond)
}

func TestResolveReusesConnection(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	batches := collect(b, lib.TopicBatch)
	for i := 0; i < 3; i++ {
		client, err := a.Resolve(b.address(), lib.TopicBatch)
		require.Nil(t, err)
		require.Nil(t, client.Submit([]byte{byte(i)}))
		awaitDelivery(t, batches)
	}
	total, _, outbound := a.peers.Counts()
	require.Equal(t, 1, total)
	require.Equal(t, 1, outbound)
}

func TestResolveRejectsBadArguments(t *testing.T) {
	a := newTestNode(t)
	_, err := a.Resolve(nil, lib.TopicVote)
	require.NotNil(t, err)
	require.Equal(t, lib.CodeNilPeer, err.Code())
	_, err = a.Resolve(&lib.PeerAddress{PublicKey: []byte("peer"), NetAddress: "1.1.1.1:9301"}, lib.TopicInvalid)
	require.NotNil(t, err)
	require.Equal(t, lib.CodeUnknownTopic, err.Code())
}

func TestDialRejectsMismatchedIdentity(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	imposter, err := crypto.NewEd25519PrivateKey()
	require.NoError(t, err)
	// dial the real listener while expecting a different identity
	address := b.address()
	address.PublicKey = imposter.PublicKey().Bytes()
	dialErr := a.Dial(address)
	require.NotNil(t, dialErr)
	require.Equal(t, lib.CodeMismatchIdentity, dialErr.Code())
	require.False(t, a.peers.Has(address.PublicKey))
}

func TestTopicsRouteIndependently(t *testing.T) {
	a, b := newTestNode(t), newTestNode(t)
	votes, proposals := collect(b, lib.TopicVote), collect(b, lib.TopicProposal)
	voteConn, err := a.Resolve(b.address(), lib.TopicVote)
	require.Nil(t, err)
	proposalConn, err := a.Resolve(b.address(), lib.TopicProposal)
	require.Nil(t, err)
	require.Nil(t, proposalConn.Submit([]byte("round request")))
	require.Nil(t, voteConn.Submit([]byte("bundle")))
	require.Equal(t, []byte("bundle"), awaitDelivery(t, votes).payload)
	require.Equal(t, []byte("round request"), awaitDelivery(t, proposals).payload)
}

func TestDialWithBackoffGivesUp(t *testing.T) {
	a := newTestNode(t)
	done := make(chan struct{})
	go func() {
		// nothing listens on the target port, the backoff must run out
		a.DialWithBackoff(&lib.PeerAddress{PublicKey: []byte("ghost"), NetAddress: "127.0.0.1:1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * testTimeout):
		t.Fatal("backoff did not give up in time")
	}
}
