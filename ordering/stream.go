package ordering

/* This file contains the commit hash bookkeeping that feeds peer selection: a sliding
window of the last three block hashes and a single-slot cache of the newest window */

// BlockHash is the digest of one finalized block
type BlockHash []byte

// HashTriple is a window of three consecutive block hashes; index 0 is the oldest.
// Each window position seeds the peer shuffle of one upcoming round
type HashTriple [3]BlockHash

// TripleZip forms the sliding triple window over the commit hash stream. It is
// seeded with two hashes so the very first commit already completes a window.
// Not safe for concurrent use; a single controller goroutine owns it
type TripleZip struct {
	queue []BlockHash // the last two hashes seen, oldest first
}

// NewTripleZip() seeds the window with the two hashes that precede the first commit
func NewTripleZip(initial [2]BlockHash) *TripleZip {
	return &TripleZip{queue: []BlockHash{initial[0], initial[1]}}
}

// Push() appends a freshly committed hash and returns the completed window: the
// two retained hashes followed by the new one. The i-th push returns hashes
// i, i+1, i+2 of the full stream, counting the two seeds as 0 and 1
func (z *TripleZip) Push(hash BlockHash) HashTriple {
	z.queue = append(z.queue, hash)
	triple := HashTriple{z.queue[0], z.queue[1], z.queue[2]}
	z.queue = z.queue[1:]
	return triple
}

// LatestTriple caches the newest completed window for consumers that run on a
// different cadence than the commit stream. Reading does not consume: a round
// decision may reuse the same window a commit-less stretch left behind.
// Not safe for concurrent use; a single controller goroutine owns it
type LatestTriple struct {
	value HashTriple // the most recent completed window
	set   bool       // false until the first Store
}

// Store() replaces the cached window
func (l *LatestTriple) Store(triple HashTriple) {
	l.value, l.set = triple, true
}

// Load() returns the cached window; ok is false before the first Store
func (l *LatestTriple) Load() (triple HashTriple, ok bool) {
	return l.value, l.set
}
