package p2p

import (
	"fmt"
	"io"
	"strings"

	"github.com/lattice-network/lattice/lib"
)

const (
	ErrListenerClosed = "use of closed network connection"
	ErrConnReset      = "connection reset by peer"
	ErrEOF            = "EOF"
	ErrPeer           = "Error peer"
)

// PeerError() normalizes a connection failure into one log line; the common
// disconnect causes collapse to their short names
func PeerError(publicKey []byte, remoteAddr string, err error) string {
	peer := &lib.PeerAddress{PublicKey: publicKey, NetAddress: remoteAddr}
	newPeerErr := func(err string) string {
		return fmt.Sprintf("%s %s@%s %s", ErrPeer, peer.ID(), remoteAddr, err)
	}
	errString := err.Error()
	if strings.Contains(errString, io.EOF.Error()) {
		return newPeerErr(ErrEOF)
	}
	if strings.Contains(errString, ErrListenerClosed) {
		return newPeerErr(ErrListenerClosed)
	}
	if strings.Contains(errString, ErrConnReset) {
		return newPeerErr(ErrConnReset)
	}
	return newPeerErr(errString)
}

func ErrFailedRead(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFailedRead, lib.P2PModule, fmt.Sprintf("read() failed with err: %s", err.Error()))
}

func ErrFailedWrite(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFailedWrite, lib.P2PModule, fmt.Sprintf("write() failed with err: %s", err.Error()))
}

func ErrMaxMessageSize(size, max int64) lib.ErrorI {
	return lib.NewError(lib.CodeMaxMessageSize, lib.P2PModule, fmt.Sprintf("message of %d bytes exceeds the %d byte limit", size, max))
}

func ErrChunkLargerThanMax() lib.ErrorI {
	return lib.NewError(lib.CodeMaxMessageSize, lib.P2PModule, "frame chunk larger than max")
}

func ErrErrorGroup(err error) lib.ErrorI {
	return lib.NewError(lib.CodeErrorGroup, lib.P2PModule, fmt.Sprintf("error group failed with err: %s", err.Error()))
}

func ErrConnDecryptFailed(err error) lib.ErrorI {
	return lib.NewError(lib.CodeConnDecrypt, lib.P2PModule, fmt.Sprintf("conn.decrypt failed with err: %s", err.Error()))
}

func ErrFailedDiffieHellman(err error) lib.ErrorI {
	return lib.NewError(lib.CodeSharedSecret, lib.P2PModule, fmt.Sprintf("diffie hellman failed with err: %s", err.Error()))
}

func ErrFailedHKDF(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFailedHKDF, lib.P2PModule, fmt.Sprintf("hkdf failed with err: %s", err.Error()))
}

func ErrFailedChallenge() lib.ErrorI {
	return lib.NewError(lib.CodeFailedChallenge, lib.P2PModule, "peer failed the handshake challenge")
}

func ErrIsBlacklisted() lib.ErrorI {
	return lib.NewError(lib.CodeBlacklisted, lib.P2PModule, "blacklisted man-in-the-middle id")
}

func ErrPeerNotFound(id string) lib.ErrorI {
	return lib.NewError(lib.CodePeerNotFound, lib.P2PModule, fmt.Sprintf("peer %s not found", id))
}

func ErrFailedDial(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFailedDial, lib.P2PModule, fmt.Sprintf("net.dial failed with err: %s", err.Error()))
}

func ErrFailedListen(err error) lib.ErrorI {
	return lib.NewError(lib.CodeFailedListen, lib.P2PModule, fmt.Sprintf("net.listen() failed with err: %s", err.Error()))
}

func ErrOutboxFull(topic lib.Topic) lib.ErrorI {
	return lib.NewError(lib.CodeOutboxFull, lib.P2PModule, fmt.Sprintf("outbox for topic %s is full", topic.String()))
}

func ErrUnknownTopic(topic lib.Topic) lib.ErrorI {
	return lib.NewError(lib.CodeUnknownTopic, lib.P2PModule, fmt.Sprintf("unknown topic %s", topic.String()))
}

func ErrConnectionResolve(id string, err error) lib.ErrorI {
	return lib.NewError(lib.CodeConnectionResolve, lib.P2PModule, fmt.Sprintf("could not resolve a connection to peer %s: %s", id, err.Error()))
}

func ErrMismatchIdentity(expected, got string) lib.ErrorI {
	return lib.NewError(lib.CodeMismatchIdentity, lib.P2PModule, fmt.Sprintf("peer identity %s does not match the dialed identity %s", got, expected))
}

func ErrConnPanic(recovered any) lib.ErrorI {
	return lib.NewError(lib.CodeConnPanic, lib.P2PModule, fmt.Sprintf("connection panicked: %v", recovered))
}
