package p2p

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	limiter "github.com/mxk/go-flowrate/flowrate"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

/*
	A rate-limited connection carrying whole messages for multiple topics, with
	vote traffic drained ahead of proposal and batch traffic
*/

const (
	messageHeaderSize    = 4  // little-endian length prefix before each envelope
	defaultSendQueueSize = 64 // outbox capacity when the config leaves it unset
)

// wire field numbers for the envelope
const (
	envelopeFieldTopic   = 1
	envelopeFieldPayload = 2
)

var _ lib.MessageI = &Envelope{}

// Envelope pairs a payload with the topic that routes it on the remote side
type Envelope struct {
	Topic   lib.Topic // the logical stream this payload belongs to
	Payload []byte    // opaque message bytes owned by the topic's handler
}

// AppendWire() encodes the envelope fields
func (e *Envelope) AppendWire(buf []byte) []byte {
	buf = lib.AppendUint(buf, envelopeFieldTopic, uint64(e.Topic))
	return lib.AppendBytes(buf, envelopeFieldPayload, e.Payload)
}

// ParseWire() populates the envelope from encoded bytes
func (e *Envelope) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, varint uint64, bz []byte) lib.ErrorI {
		switch num {
		case envelopeFieldTopic:
			e.Topic = lib.Topic(varint)
		case envelopeFieldPayload:
			e.Payload = bz
		}
		return nil
	})
}

// MultiConn is one authenticated peer connection: an outbox per topic on the
// send side and a single receive loop dispatching inbound envelopes upward
type MultiConn struct {
	conn     *EncryptedConn                // the underlying encrypted tcp connection
	address  *lib.PeerAddress              // the authenticated identity of the remote peer
	outboxes [lib.TopicInvalid]chan []byte // bounded per-topic send queues
	quitSend chan struct{}                 // closed to stop the send loop
	quitRecv chan struct{}                 // closed to stop the receive loop

	onMessage func(*lib.PeerAddress, *Envelope) // inbound envelope sink
	onError   func(publicKey []byte, err error) // fired at most once on first failure
	errOnce   sync.Once
	stopOnce  sync.Once

	maxMessageBytes int64 // refuse inbound envelopes larger than this
	writeBytesPerS  int64 // outbound rate limit, 0 is unlimited
	readBytesPerS   int64 // inbound rate limit, 0 is unlimited

	metrics *lib.Metrics
	log     lib.LoggerI
}

// NewConnection() runs the handshake and builds the per-topic outboxes; the
// loops do not start until Start() so the caller may set onError first
func NewConnection(conn net.Conn, privateKey crypto.PrivateKeyI, config lib.P2PConfig,
	onMessage func(*lib.PeerAddress, *Envelope), metrics *lib.Metrics, log lib.LoggerI) (*MultiConn, lib.ErrorI) {
	eConn, err := NewHandshake(conn, privateKey)
	if err != nil {
		return nil, err
	}
	queueSize := config.SendQueueSize
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	c := &MultiConn{
		conn: eConn,
		address: &lib.PeerAddress{
			PublicKey:  eConn.PeerPublicKey().Bytes(),
			NetAddress: eConn.RemoteAddr().String(),
		},
		quitSend:        make(chan struct{}),
		quitRecv:        make(chan struct{}),
		onMessage:       onMessage,
		maxMessageBytes: config.MaxMessageBytes,
		writeBytesPerS:  config.WriteBytesPerS,
		readBytesPerS:   config.ReadBytesPerS,
		metrics:         metrics,
		log:             log,
	}
	for i := range c.outboxes {
		c.outboxes[i] = make(chan []byte, queueSize)
	}
	return c, nil
}

// Address() returns the authenticated identity of the remote peer
func (c *MultiConn) Address() *lib.PeerAddress { return c.address }

// Start() launches the send and receive loops
func (c *MultiConn) Start() {
	go c.startSendLoop()
	go c.startReceiveLoop()
}

// Stop() shuts the connection down without firing onError; safe to call twice
func (c *MultiConn) Stop() {
	c.stopOnce.Do(func() {
		c.errOnce.Do(func() {}) // a deliberate stop is not a failure
		close(c.quitSend)
		close(c.quitRecv)
		_ = c.conn.Close()
	})
}

// Send() queues a payload on the topic's outbox; it never blocks, a full
// outbox is reported to the caller instead
func (c *MultiConn) Send(topic lib.Topic, payload []byte) lib.ErrorI {
	if topic >= lib.TopicInvalid {
		return ErrUnknownTopic(topic)
	}
	select {
	case c.outboxes[topic] <- payload:
		return nil
	default:
		return ErrOutboxFull(topic)
	}
}

// startSendLoop() drains the outboxes to the wire until quit or write failure
func (c *MultiConn) startSendLoop() {
	defer c.catchPanic()
	monitor := limiter.New(0, 0)
	defer monitor.Done()
	for {
		envelope, ok := c.nextEnvelope()
		if !ok {
			return
		}
		if err := c.send(envelope, monitor); err != nil {
			c.fail(err)
			return
		}
	}
}

// nextEnvelope() picks the next outbound envelope; the vote outbox wins when
// it has traffic, otherwise the first ready topic is taken
func (c *MultiConn) nextEnvelope() (*Envelope, bool) {
	select {
	case payload := <-c.outboxes[lib.TopicVote]:
		return &Envelope{Topic: lib.TopicVote, Payload: payload}, true
	case <-c.quitSend:
		return nil, false
	default:
	}
	select {
	case payload := <-c.outboxes[lib.TopicVote]:
		return &Envelope{Topic: lib.TopicVote, Payload: payload}, true
	case payload := <-c.outboxes[lib.TopicProposal]:
		return &Envelope{Topic: lib.TopicProposal, Payload: payload}, true
	case payload := <-c.outboxes[lib.TopicBatch]:
		return &Envelope{Topic: lib.TopicBatch, Payload: payload}, true
	case <-c.quitSend:
		return nil, false
	}
}

// send() writes one length-prefixed envelope under the write rate limit
func (c *MultiConn) send(envelope *Envelope, monitor *limiter.Monitor) lib.ErrorI {
	bz, err := lib.Marshal(envelope)
	if err != nil {
		return err
	}
	frame := make([]byte, messageHeaderSize+len(bz))
	binary.LittleEndian.PutUint32(frame, uint32(len(bz)))
	copy(frame[messageHeaderSize:], bz)
	monitor.Limit(len(frame), c.writeBytesPerS, true)
	n, er := c.conn.Write(frame)
	monitor.Update(n)
	if er != nil {
		return ErrFailedWrite(er)
	}
	c.metrics.AddPeerBytes(int64(n), 0)
	return nil
}

// startReceiveLoop() reads envelopes off the wire and hands them to onMessage
func (c *MultiConn) startReceiveLoop() {
	defer c.catchPanic()
	monitor := limiter.New(0, 0)
	defer monitor.Done()
	for {
		select {
		case <-c.quitRecv:
			return
		default:
		}
		envelope, err := c.receive(monitor)
		if err != nil {
			c.fail(err)
			return
		}
		if envelope.Topic >= lib.TopicInvalid {
			c.fail(ErrUnknownTopic(envelope.Topic))
			return
		}
		c.onMessage(c.address, envelope)
	}
}

// receive() reads one length-prefixed envelope under the read rate limit
func (c *MultiConn) receive(monitor *limiter.Monitor) (*Envelope, lib.ErrorI) {
	header := make([]byte, messageHeaderSize)
	if _, er := io.ReadFull(c.conn, header); er != nil {
		return nil, ErrFailedRead(er)
	}
	size := int64(binary.LittleEndian.Uint32(header))
	if size > c.maxMessageBytes {
		return nil, ErrMaxMessageSize(size, c.maxMessageBytes)
	}
	monitor.Limit(int(size)+messageHeaderSize, c.readBytesPerS, true)
	body := make([]byte, size)
	n, er := io.ReadFull(c.conn, body)
	monitor.Update(n + messageHeaderSize)
	if er != nil {
		return nil, ErrFailedRead(er)
	}
	c.metrics.AddPeerBytes(0, int64(n+messageHeaderSize))
	envelope := new(Envelope)
	if err := lib.Unmarshal(body, envelope); err != nil {
		return nil, err
	}
	return envelope, nil
}

// fail() reports the first failure upward exactly once
func (c *MultiConn) fail(err error) {
	c.errOnce.Do(func() {
		if c.onError != nil {
			c.onError(c.address.PublicKey, err)
		}
	})
}

func (c *MultiConn) catchPanic() {
	if r := recover(); r != nil {
		c.log.Errorf("connection to %s panicked: %v", c.address.ID(), r)
		c.fail(ErrConnPanic(r))
	}
}

var _ lib.ClientConn = topicConn{}

// topicConn narrows a connection to a single topic for submitting callers
type topicConn struct {
	conn  *MultiConn
	topic lib.Topic
}

// Submit() queues the payload on the underlying connection's topic outbox
func (t topicConn) Submit(payload []byte) lib.ErrorI {
	return t.conn.Send(t.topic, payload)
}
