package crypto

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPublicKeyFromString(t *testing.T) {
	// pre-generate a ED25519
	ed25519Pk, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// pre-generate a BLS12381
	blsPrivateKey, err := NewBLSPrivateKey()
	require.NoError(t, err)
	tests := []struct {
		name     string
		string   string
		expected PublicKeyI
		error    string
	}{
		{
			name:   "not a recognized key",
			string: "abcd",
			error:  "unrecognized public key format",
		},
		{
			name:     "ed25519 public key",
			string:   ed25519Pk.PublicKey().String(),
			expected: ed25519Pk.PublicKey(),
		},
		{
			name:     "bls12381 public key",
			string:   blsPrivateKey.PublicKey().String(),
			expected: blsPrivateKey.PublicKey(),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// execute the function call
			got, e := NewPublicKeyFromString(test.string)
			// check if an error is expected or not
			require.Equal(t, test.error != "", e != nil)
			// check the error
			if e != nil {
				require.ErrorContains(t, e, test.error)
				return
			}
			// compare got vs expected
			require.True(t, test.expected.Equals(got))
		})
	}
}

func TestNewPublicKeyFromBytes(t *testing.T) {
	// pre-generate a ED25519
	ed25519Pk, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// pre-generate a BLS12381
	blsPrivateKey, err := NewBLSPrivateKey()
	require.NoError(t, err)
	tests := []struct {
		name     string
		bytes    []byte
		expected PublicKeyI
		error    string
	}{
		{
			name:  "not a recognized key",
			bytes: []byte("abcd"),
			error: "unrecognized public key format",
		},
		{
			name:     "ed25519 public key",
			bytes:    ed25519Pk.PublicKey().Bytes(),
			expected: ed25519Pk.PublicKey(),
		},
		{
			name:     "bls12381 public key",
			bytes:    blsPrivateKey.PublicKey().Bytes(),
			expected: blsPrivateKey.PublicKey(),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// execute the function call
			got, e := NewPublicKeyFromBytes(test.bytes)
			// check if an error is expected or not
			require.Equal(t, test.error != "", e != nil)
			// check the error
			if e != nil {
				require.ErrorContains(t, e, test.error)
				return
			}
			// compare got vs expected
			require.True(t, test.expected.Equals(got))
		})
	}
}

func TestNewPrivateKeyFromString(t *testing.T) {
	// pre-generate a ED25519
	ed25519Pk, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// pre-generate a BLS12381
	blsPrivateKey, err := NewBLSPrivateKey()
	require.NoError(t, err)
	tests := []struct {
		name     string
		string   string
		expected PrivateKeyI
		error    string
	}{
		{
			name:   "not a recognized key",
			string: "abcd",
			error:  "unrecognized private key format",
		},
		{
			name:     "ed25519 private key",
			string:   ed25519Pk.String(),
			expected: ed25519Pk,
		},
		{
			name:     "bls12381 private key",
			string:   blsPrivateKey.String(),
			expected: blsPrivateKey,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// execute the function call
			got, e := NewPrivateKeyFromString(test.string)
			// check if an error is expected or not
			require.Equal(t, test.error != "", e != nil)
			// check the error
			if e != nil {
				require.ErrorContains(t, e, test.error)
				return
			}
			// compare got vs expected
			require.True(t, test.expected.Equals(got))
		})
	}
}

func TestNewPrivateKeyFromBytes(t *testing.T) {
	// pre-generate a ED25519
	ed25519Pk, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// pre-generate a BLS12381
	blsPrivateKey, err := NewBLSPrivateKey()
	require.NoError(t, err)
	tests := []struct {
		name     string
		bytes    []byte
		expected PrivateKeyI
		error    string
	}{
		{
			name:  "not a recognized key",
			bytes: []byte("abcd"),
			error: "unrecognized private key format",
		},
		{
			name:     "ed25519 private key",
			bytes:    ed25519Pk.Bytes(),
			expected: ed25519Pk,
		},
		{
			name:     "bls12381 private key",
			bytes:    blsPrivateKey.Bytes(),
			expected: blsPrivateKey,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// execute the function call
			got, e := NewPrivateKeyFromBytes(test.bytes)
			// check if an error is expected or not
			require.Equal(t, test.error != "", e != nil)
			// check the error
			if e != nil {
				require.ErrorContains(t, e, test.error)
				return
			}
			// compare got vs expected
			require.True(t, test.expected.Equals(got))
		})
	}
}

func TestPrivateKeyFileRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		generate func() (PrivateKeyI, error)
	}{
		{
			name:     "ed25519",
			detail:   "an ed25519 node key survives the write and read back",
			generate: NewEd25519PrivateKey,
		},
		{
			name:     "bls12381",
			detail:   "a bls node key survives the write and read back",
			generate: NewBLSPrivateKey,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// generate a key of the scheme under test
			key, err := test.generate()
			require.NoError(t, err)
			// write the key to a file in a throwaway directory
			keyPath := filepath.Join(t.TempDir(), "node_key.json")
			require.NoError(t, PrivateKeyToFile(key, keyPath))
			// execute the function call
			got, err := NewPrivateKeyFromFile(keyPath)
			require.NoError(t, err)
			// compare got vs expected
			require.True(t, key.Equals(got))
			// ensure the paired public key survived as well
			require.True(t, key.PublicKey().Equals(got.PublicKey()))
		})
	}
}

func TestPublicKeyJSON(t *testing.T) {
	// pre-generate a ED25519
	ed25519Pk, err := NewEd25519PrivateKey()
	require.NoError(t, err)
	// pre-generate a BLS12381
	blsPrivateKey, err := NewBLSPrivateKey()
	require.NoError(t, err)
	t.Run("ed25519", func(t *testing.T) {
		// marshal the public key into json
		jsonBytes, e := json.Marshal(ed25519Pk.PublicKey())
		require.NoError(t, e)
		// unmarshal back into a fresh key object
		got := new(ED25519PublicKey)
		require.NoError(t, json.Unmarshal(jsonBytes, got))
		// compare got vs expected
		require.True(t, ed25519Pk.PublicKey().Equals(got))
	})
	t.Run("bls12381", func(t *testing.T) {
		// marshal the public key into json
		jsonBytes, e := json.Marshal(blsPrivateKey.PublicKey())
		require.NoError(t, e)
		// unmarshal back into a fresh key object
		got := new(BLS12381PublicKey)
		require.NoError(t, json.Unmarshal(jsonBytes, got))
		// compare got vs expected
		require.True(t, blsPrivateKey.PublicKey().Equals(got))
	})
}
