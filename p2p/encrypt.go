package p2p

import (
	"crypto/cipher"
	"encoding/binary"
	"io"
	"math"
	"net"
	"sync"
	"time"

	pool "github.com/libp2p/go-buffer-pool"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

/*
	Handshake to encrypted connection:
	1) Obtaining a shared secret using diffie hellman over the x25519 curve (ECDH)
	2) HKDF derives two directional keys and a shared challenge from the secret
	3) ChaCha20-Poly1305 AEAD frames carry all traffic from this point on
	4) Each side signs the challenge with its static validator key and verifies the peer's proof
*/

// EncryptedConn is a net.Conn that moves all traffic through fixed-size,
// authenticated ChaCha20-Poly1305 frames after a successful handshake
type EncryptedConn struct {
	conn    net.Conn
	receive internalState
	send    internalState

	peerPubKey crypto.PublicKeyI
}

type internalState struct {
	sync.Mutex
	aead   cipher.AEAD
	unread []byte // holds frame bytes that did not fit the caller's buffer
	nonce  *[crypto.AEADNonceSize]byte
}

// wire field numbers for the handshake identity proof
const (
	identityFieldPublicKey = 1
	identityFieldSignature = 2
)

var _ lib.MessageI = &identity{}

// identity is the proof exchanged once encryption is up: the static public key
// of the peer and its signature over the shared handshake challenge
type identity struct {
	PublicKey []byte
	Signature []byte
}

// AppendWire() encodes the identity proof fields
func (i *identity) AppendWire(buf []byte) []byte {
	buf = lib.AppendBytes(buf, identityFieldPublicKey, i.PublicKey)
	return lib.AppendBytes(buf, identityFieldSignature, i.Signature)
}

// ParseWire() populates the identity proof from encoded bytes
func (i *identity) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, _ uint64, bz []byte) lib.ErrorI {
		switch num {
		case identityFieldPublicKey:
			i.PublicKey = bz
		case identityFieldSignature:
			i.Signature = bz
		}
		return nil
	})
}

// NewHandshake() upgrades a raw tcp connection to an authenticated encrypted
// connection; both dialer and listener run the same symmetric sequence
func NewHandshake(conn net.Conn, privateKey crypto.PrivateKeyI) (*EncryptedConn, lib.ErrorI) {
	ephemeralPublic, ephemeralPrivate, err := crypto.GenerateCurve25519Keypair()
	if err != nil {
		return nil, ErrFailedDiffieHellman(err)
	}
	peerEphemeralPublic, e := keySwap(conn, ephemeralPublic)
	if e != nil {
		return nil, e
	}
	secret, err := crypto.SharedSecret(peerEphemeralPublic, ephemeralPrivate)
	if err != nil {
		return nil, ErrFailedDiffieHellman(err)
	}
	sendAEAD, receiveAEAD, challenge, err := crypto.HKDFSecretsAndChallenge(secret, ephemeralPublic, peerEphemeralPublic)
	if err != nil {
		return nil, ErrFailedHKDF(err)
	}
	c := &EncryptedConn{
		conn:    conn,
		receive: newInternalState(receiveAEAD),
		send:    newInternalState(sendAEAD),
	}
	peerProof, e := signatureSwap(c, &identity{
		PublicKey: privateKey.PublicKey().Bytes(),
		Signature: privateKey.Sign(challenge[:]),
	})
	if e != nil {
		return nil, e
	}
	peerPubKey, err := crypto.NewPublicKeyFromBytes(peerProof.PublicKey)
	if err != nil {
		return nil, ErrFailedChallenge()
	}
	if !peerPubKey.VerifyBytes(challenge[:], peerProof.Signature) {
		return nil, ErrFailedChallenge()
	}
	c.peerPubKey = peerPubKey
	return c, nil
}

// PeerPublicKey() returns the authenticated static key of the remote peer
func (c *EncryptedConn) PeerPublicKey() crypto.PublicKeyI { return c.peerPubKey }

// Write() encrypts and sends data in one or more fixed-size frames
func (c *EncryptedConn) Write(data []byte) (n int, err error) {
	c.send.Lock()
	defer c.send.Unlock()
	encryptedBuffer, plainTextBuffer := pool.Get(crypto.EncryptedFrameSize), pool.Get(crypto.FrameSize)
	defer func() { pool.Put(plainTextBuffer); pool.Put(encryptedBuffer) }()
	for len(data) > 0 {
		chunk := data
		if len(chunk) > crypto.MaxDataSize {
			chunk = data[:crypto.MaxDataSize]
		}
		data = data[len(chunk):]
		binary.LittleEndian.PutUint32(plainTextBuffer, uint32(len(chunk)))                     // chunk length header
		copy(plainTextBuffer[crypto.LengthHeaderSize:], chunk)                                 // body
		sealed := c.send.aead.Seal(encryptedBuffer[:0], c.send.nonce[:], plainTextBuffer, nil) // encrypt
		incrementNonce(c.send.nonce)                                                           // never reuse a nonce
		if _, er := c.conn.Write(sealed); er != nil {                                          // write the frame
			return n, ErrFailedWrite(er)
		}
		n += len(chunk)
	}
	return
}

// Read() decrypts the next frame into data; leftover frame bytes are held for
// the next call
func (c *EncryptedConn) Read(data []byte) (n int, err error) {
	c.receive.Lock()
	defer c.receive.Unlock()
	if bzRead, hadUnread := c.checkUnread(data); hadUnread {
		return bzRead, nil
	}
	encryptedBuffer, plainTextBuffer := pool.Get(crypto.EncryptedFrameSize), pool.Get(crypto.FrameSize)
	defer func() { pool.Put(plainTextBuffer); pool.Put(encryptedBuffer) }()
	if _, er := io.ReadFull(c.conn, encryptedBuffer); er != nil {
		return 0, ErrFailedRead(er)
	}
	plain, er := c.receive.aead.Open(plainTextBuffer[:0], c.receive.nonce[:], encryptedBuffer, nil)
	if er != nil {
		return 0, ErrConnDecryptFailed(er)
	}
	incrementNonce(c.receive.nonce)
	chunkLength := binary.LittleEndian.Uint32(plain) // read the length header
	if chunkLength > crypto.MaxDataSize {
		return 0, ErrChunkLargerThanMax()
	}
	chunk := plain[crypto.LengthHeaderSize : crypto.LengthHeaderSize+chunkLength]
	n = copy(data, chunk)
	return c.populateUnread(n, chunk)
}

// checkUnread() serves a read from the carryover of the previous frame, if any
func (c *EncryptedConn) checkUnread(data []byte) (int, bool) {
	if len(c.receive.unread) > 0 {
		n := copy(data, c.receive.unread)
		c.receive.unread = c.receive.unread[n:]
		return n, true
	}
	return 0, false
}

// populateUnread() copies the unread tail of a frame out of the pooled buffer
func (c *EncryptedConn) populateUnread(bytesRead int, chunk []byte) (int, error) {
	if bytesRead < len(chunk) {
		// must copy; the frame buffer returns to the pool after this call
		c.receive.unread = make([]byte, len(chunk)-bytesRead)
		copy(c.receive.unread, chunk[bytesRead:])
	}
	return bytesRead, nil
}

func (c *EncryptedConn) Close() error                       { return c.conn.Close() }
func (c *EncryptedConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *EncryptedConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *EncryptedConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *EncryptedConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *EncryptedConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// keySwap() concurrently sends our ephemeral key and receives the peer's;
// both keys travel as raw x25519 bytes in the clear
func keySwap(conn io.ReadWriter, ephemeralPublicKey []byte) ([]byte, lib.ErrorI) {
	peerEphemeralPublic := make([]byte, len(ephemeralPublicKey))
	var g errgroup.Group
	g.Go(func() error { return sendKey(conn, ephemeralPublicKey) })
	g.Go(func() error { return receiveKey(conn, peerEphemeralPublic) })
	if er := g.Wait(); er != nil {
		return nil, ErrErrorGroup(er)
	}
	return peerEphemeralPublic, nil
}

// signatureSwap() concurrently sends our identity proof and receives the
// peer's over the already encrypted connection
func signatureSwap(conn io.ReadWriter, proof *identity) (*identity, lib.ErrorI) {
	peerProof := new(identity)
	var g errgroup.Group
	g.Go(func() error { return sendSig(conn, proof) })
	g.Go(func() error { return receiveSig(conn, peerProof) })
	if er := g.Wait(); er != nil {
		return nil, ErrErrorGroup(er)
	}
	return peerProof, nil
}

func sendSig(conn io.ReadWriter, proof *identity) lib.ErrorI {
	bz, err := lib.Marshal(proof)
	if err != nil {
		return err
	}
	if _, er := conn.Write(bz); er != nil {
		return ErrFailedWrite(er)
	}
	return nil
}

func receiveSig(conn io.ReadWriter, proof *identity) lib.ErrorI {
	// the proof is far smaller than one frame, so a single read returns it whole
	buffer := make([]byte, crypto.MaxDataSize)
	n, er := conn.Read(buffer)
	if er != nil {
		return ErrFailedRead(er)
	}
	return lib.Unmarshal(buffer[:n], proof)
}

func sendKey(conn io.ReadWriter, ephemeralPublicKey []byte) lib.ErrorI {
	if _, er := conn.Write(ephemeralPublicKey); er != nil {
		return ErrFailedWrite(er)
	}
	return nil
}

func receiveKey(conn io.ReadWriter, ephemeralPublicKey []byte) lib.ErrorI {
	if _, er := io.ReadFull(conn, ephemeralPublicKey); er != nil {
		return ErrFailedRead(er)
	}
	if crypto.PubIsBlacklisted(ephemeralPublicKey) {
		return ErrIsBlacklisted()
	}
	return nil
}

// chacha20-poly1305 expects a 12 byte nonce; the low 8 bytes count frames
func incrementNonce(nonce *[crypto.AEADNonceSize]byte) {
	counter := binary.LittleEndian.Uint64(nonce[4:])
	if counter == math.MaxUint64 {
		panic("nonce overflow")
	}
	counter++
	binary.LittleEndian.PutUint64(nonce[4:], counter)
}

func newInternalState(aead cipher.AEAD) internalState {
	return internalState{
		Mutex: sync.Mutex{},
		aead:  aead,
		nonce: new([crypto.AEADNonceSize]byte),
	}
}
