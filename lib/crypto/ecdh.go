package crypto

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	LengthHeaderSize   = 4
	MaxDataSize        = 1024
	ChallengeSize      = 32
	Poly1305TagSize    = 16
	FrameSize          = MaxDataSize + LengthHeaderSize
	EncryptedFrameSize = Poly1305TagSize + FrameSize
	AEADKeySize        = chacha20poly1305.KeySize
	AEADNonceSize      = chacha20poly1305.NonceSize
	TwoAEADKeySize     = 2 * AEADKeySize
	HKDFSize           = TwoAEADKeySize + ChallengeSize // 2 keys and challenge
)

// Big picture: DH is used to establish a shared secret, and then HKDF is used to derive multiple keys from that secret for encryption

// GenerateCurve25519Keypair() creates an ephemeral x25519 key pair for a single diffie hellman exchange
// The keys are short-lived, only used to establish a shared secret for one connection
func GenerateCurve25519Keypair() (public, private []byte, err error) {
	private = make([]byte, curve25519.ScalarSize)
	if _, err = rand.Read(private); err != nil {
		return nil, nil, err
	}
	public, err = curve25519.X25519(private, curve25519.Basepoint)
	return
}

// SharedSecret() performs a diffie hellman style key exchange with X25519 - meaning both peers compute the exact
// same pseudorandom bytes from the peer's ephemeral public key and their local ephemeral private key
// without transmitting the secret over the wire
func SharedSecret(peerPublicKey, private []byte) ([]byte, error) {
	secret, err := curve25519.X25519(private, peerPublicKey)
	if err != nil {
		return nil, err
	}
	// ensure the secret isn't an 'all-zero' byte array as this would be a weak or invalid key agreement
	if subtle.ConstantTimeCompare(secret[:], new([32]byte)[:]) == 1 {
		return nil, fmt.Errorf("all zero shared secret")
	}
	// return the diffie hellman secret
	return secret, nil
}

// HKDFSecretsAndChallenge() generates shared encryption keys and a unique challenge using HKDF
// (HMAC-based Key Derivation Function) from a diffie hellman shared secret
//
// The HKDF buffer holds two AEAD secrets plus a 32 byte challenge; both sides read the same bytes,
// so the only coordination needed is which side sends with which secret
func HKDFSecretsAndChallenge(dhSecret []byte, ePub, ePeerPub []byte) (send cipher.AEAD, receive cipher.AEAD, challenge *[32]byte, err error) {
	hkdfReader := hkdf.New(Hasher, dhSecret, nil, nil)
	// create an array of bytes to populate with the key derivation
	buffer := new([HKDFSize]byte)
	if _, err = io.ReadFull(hkdfReader, buffer[:]); err != nil {
		return
	}
	// two sets of keys keep each communication direction secure and independently managed
	challenge, receiveSecret, sendSecret := new([ChallengeSize]byte), new([AEADKeySize]byte), new([AEADKeySize]byte)
	// Use a basic comparison protocol to assign send and receive channels:
	// The actor with the smaller public key (ePub < ePeerPub) will use the buffer's first derived secret as the receive key
	// and the second as the send key. The other actor (ePub >= ePeerPub) does the reverse, ensuring consistent
	// send/receive key pairing between both parties
	if bytes.Compare(ePub, ePeerPub) < 0 {
		getTwoSecretsFromBuffer(buffer, receiveSecret, sendSecret)
	} else {
		getTwoSecretsFromBuffer(buffer, sendSecret, receiveSecret)
	}
	// copy the last part of the HKDF into the challenge object
	copy(challenge[:], buffer[TwoAEADKeySize:HKDFSize])
	// using the arbitrary bytes as 32 byte secret inputs into the chacha20poly1305 scheme,
	// the peers are able to encrypt and decrypt each message
	send, err = chacha20poly1305.New(sendSecret[:])
	if err != nil {
		return
	}
	// use the same AEAD protocol for the receive secret
	receive, err = chacha20poly1305.New(receiveSecret[:])
	if err != nil {
		return
	}
	return
}

// getTwoSecretsFromBuffer() splits the first two AEAD keys out of an HKDF buffer
func getTwoSecretsFromBuffer(buffer *[HKDFSize]byte, first, second *[32]byte) {
	copy(first[:], buffer[0:AEADKeySize])
	copy(second[:], buffer[AEADKeySize:TwoAEADKeySize])
}

// x25519WeakPointBlacklist taken from lib-sodium
// https://github.com/jedisct1/libsodium/blob/985ad65bfb1563ca69e0bc0248e15da4f5cf575f/src/libsodium/crypto_scalarmult/curve25519/ref10/x25519_ref10.c
var x25519WeakPointBlacklist = [][32]byte{
	// 0 (order 4)
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	// 1 (order 1)
	{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	// 325606250916557431795983626356110631294008115727848805560023387167927233504
	//   (order 8)
	{0xe0, 0xeb, 0x7a, 0x7c, 0x3b, 0x41, 0xb8, 0xae, 0x16, 0x56, 0xe3,
		0xfa, 0xf1, 0x9f, 0xc4, 0x6a, 0xda, 0x09, 0x8d, 0xeb, 0x9c, 0x32,
		0xb1, 0xfd, 0x86, 0x62, 0x05, 0x16, 0x5f, 0x49, 0xb8, 0x00},
	// 39382357235489614581723060781553021112529911719440698176882885853963445705823
	//    (order 8)
	{0x5f, 0x9c, 0x95, 0xbc, 0xa3, 0x50, 0x8c, 0x24, 0xb1, 0xd0, 0xb1,
		0x55, 0x9c, 0x83, 0xef, 0x5b, 0x04, 0x44, 0x5c, 0xc4, 0x58, 0x1c,
		0x8e, 0x86, 0xd8, 0x22, 0x4e, 0xdd, 0xd0, 0x9f, 0x11, 0x57},
	// p-1 (order 2)
	{0xec, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	// p (=0, order 4)
	{0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	// p+1 (=1, order 1)
	{0xee, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
}

// PubIsBlacklisted() rejects small-order x25519 points early to prevent weak key agreements,
// as recommended in the research (https://eprint.iacr.org/2017/806.pdf)
func PubIsBlacklisted(pubKey []byte) bool {
	for _, bl := range x25519WeakPointBlacklist {
		if subtle.ConstantTimeCompare(pubKey[:], bl[:]) == 1 {
			return true
		}
	}
	return false
}
