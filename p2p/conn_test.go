package p2p

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

const testTimeout = 5 * time.Second

// newTestConnPair() builds two handshaken connections over an in-memory pipe;
// the loops are not started so callers may wire onError first
func newTestConnPair(t *testing.T, config1, config2 lib.P2PConfig) (conn1, conn2 *MultiConn, inbox1, inbox2 chan *Envelope) {
	t.Helper()
	key1, err := crypto.NewEd25519PrivateKey()
	require.NoError(t, err)
	key2, err := crypto.NewEd25519PrivateKey()
	require.NoError(t, err)
	pipe1, pipe2 := net.Pipe()
	inbox1, inbox2 = make(chan *Envelope, 16), make(chan *Envelope, 16)
	log := lib.NewNullLogger()
	type result struct {
		conn *MultiConn
		err  lib.ErrorI
	}
	side := make(chan result, 1)
	go func() {
		conn, e := NewConnection(pipe1, key1, config1, func(_ *lib.PeerAddress, envelope *Envelope) { inbox1 <- envelope }, nil, log)
		side <- result{conn, e}
	}()
	conn2, err2 := NewConnection(pipe2, key2, config2, func(_ *lib.PeerAddress, envelope *Envelope) { inbox2 <- envelope }, nil, log)
	require.Nil(t, err2)
	r := <-side
	require.Nil(t, r.err)
	conn1 = r.conn
	t.Cleanup(func() { conn1.Stop(); conn2.Stop() })
	return
}

// newBareConn() builds an unconnected MultiConn for outbox-only tests
func newBareConn(t *testing.T, queueSize int) *MultiConn {
	t.Helper()
	c := &MultiConn{
		address:  &lib.PeerAddress{PublicKey: []byte("peer"), NetAddress: "pipe"},
		quitSend: make(chan struct{}),
		quitRecv: make(chan struct{}),
		log:      lib.NewNullLogger(),
	}
	for i := range c.outboxes {
		c.outboxes[i] = make(chan []byte, queueSize)
	}
	return c
}

func receiveEnvelope(t *testing.T, inbox chan *Envelope) *Envelope {
	t.Helper()
	select {
	case envelope := <-inbox:
		return envelope
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for envelope")
		return nil
	}
}

func TestConnectionDeliversTopics(t *testing.T) {
	config := lib.DefaultP2PConfig()
	conn1, conn2, inbox1, inbox2 := newTestConnPair(t, config, config)
	conn1.Start()
	conn2.Start()
	// execute the function call
	require.Nil(t, conn1.Send(lib.TopicVote, []byte("vote payload")))
	// compare got vs expected
	envelope := receiveEnvelope(t, inbox2)
	require.Equal(t, lib.TopicVote, envelope.Topic)
	require.Equal(t, []byte("vote payload"), envelope.Payload)
	// and the reverse direction
	require.Nil(t, conn2.Send(lib.TopicBatch, []byte("batch payload")))
	envelope = receiveEnvelope(t, inbox1)
	require.Equal(t, lib.TopicBatch, envelope.Topic)
	require.Equal(t, []byte("batch payload"), envelope.Payload)
}

func TestConnectionCarriesEmptyEnvelope(t *testing.T) {
	config := lib.DefaultP2PConfig()
	conn1, conn2, _, inbox2 := newTestConnPair(t, config, config)
	conn1.Start()
	conn2.Start()
	// an all-default envelope marshals to zero bytes and must still arrive
	require.Nil(t, conn1.Send(lib.TopicVote, nil))
	envelope := receiveEnvelope(t, inbox2)
	require.Equal(t, lib.TopicVote, envelope.Topic)
	require.Empty(t, envelope.Payload)
}

func TestVoteOutboxDrainsFirst(t *testing.T) {
	conn := newBareConn(t, 4)
	require.Nil(t, conn.Send(lib.TopicBatch, []byte("batch")))
	require.Nil(t, conn.Send(lib.TopicProposal, []byte("proposal")))
	require.Nil(t, conn.Send(lib.TopicVote, []byte("vote")))
	// the vote outbox wins although it was filled last
	envelope, ok := conn.nextEnvelope()
	require.True(t, ok)
	require.Equal(t, lib.TopicVote, envelope.Topic)
	// the remaining topics drain once votes are empty
	seen := make(map[lib.Topic][]byte)
	for i := 0; i < 2; i++ {
		envelope, ok = conn.nextEnvelope()
		require.True(t, ok)
		seen[envelope.Topic] = envelope.Payload
	}
	require.Equal(t, []byte("proposal"), seen[lib.TopicProposal])
	require.Equal(t, []byte("batch"), seen[lib.TopicBatch])
}

func TestSendRejectsUnknownTopic(t *testing.T) {
	conn := newBareConn(t, 1)
	err := conn.Send(lib.TopicInvalid, []byte("x"))
	require.NotNil(t, err)
	require.Equal(t, lib.CodeUnknownTopic, err.Code())
}

func TestSendReportsFullOutbox(t *testing.T) {
	conn := newBareConn(t, 1)
	require.Nil(t, conn.Send(lib.TopicVote, []byte("first")))
	err := conn.Send(lib.TopicVote, []byte("second"))
	require.NotNil(t, err)
	require.Equal(t, lib.CodeOutboxFull, err.Code())
}

func TestOversizeMessageDropsConnection(t *testing.T) {
	sender, receiver := lib.DefaultP2PConfig(), lib.DefaultP2PConfig()
	receiver.MaxMessageBytes = 64
	conn1, conn2, _, _ := newTestConnPair(t, sender, receiver)
	failed := make(chan error, 1)
	conn2.onError = func(_ []byte, err error) { failed <- err }
	conn1.Start()
	conn2.Start()
	require.Nil(t, conn1.Send(lib.TopicBatch, bytes.Repeat([]byte{0x01}, 200)))
	select {
	case err := <-failed:
		errI, ok := err.(lib.ErrorI)
		require.True(t, ok)
		require.Equal(t, lib.CodeMaxMessageSize, errI.Code())
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for the oversize failure")
	}
}

func TestTopicConnSubmit(t *testing.T) {
	conn := newBareConn(t, 4)
	client := topicConn{conn: conn, topic: lib.TopicProposal}
	require.Nil(t, client.Submit([]byte("request")))
	select {
	case payload := <-conn.outboxes[lib.TopicProposal]:
		require.Equal(t, []byte("request"), payload)
	default:
		t.Fatal("payload was not queued on the proposal outbox")
	}
}
