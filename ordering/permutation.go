package ordering

import (
	"math/rand"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

/* This file contains the deterministic shuffle that turns a block hash into a peer ordering */

// Permutation() maps a block hash to a shuffle of the indexes 0..n-1. Every
// validator derives the same shuffle from the same hash, so role assignment
// needs no extra communication between peers
func Permutation(hash []byte, n int) ([]int, lib.ErrorI) {
	// a shuffle over nothing has no meaning; the caller passed an empty ledger
	if n <= 0 {
		return nil, ErrEmptyPeerList()
	}
	// fold the hash into a 64-bit seed; the generator stream is stable across releases
	source := rand.NewSource(crypto.Hash64(hash))
	return rand.New(source).Perm(n), nil
}
