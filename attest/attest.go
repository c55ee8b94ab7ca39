package attest

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"sync"
)

var (
	// ErrBadSignature signals a malformed or failed signature check.
	ErrBadSignature = errors.New("attest: invalid signature")
	// ErrUntrustedSigner signals the signer key is not on the allow-list.
	ErrUntrustedSigner = errors.New("attest: signer not trusted")
	// ErrNotOwner signals allow-list mutation by anyone but the owner.
	ErrNotOwner = errors.New("attest: only owner may manage trusted signers")
)

// Verify checks a 64-byte Ed25519 signature over message against a 32-byte
// signer key. Pure function, no side effects; any bit flip in signature,
// message or key fails.
func Verify(signature, message, signerKey []byte) error {
	if len(signature) != ed25519.SignatureSize || len(signerKey) != ed25519.PublicKeySize {
		return ErrBadSignature
	}
	if !ed25519.Verify(ed25519.PublicKey(signerKey), message, signature) {
		return ErrBadSignature
	}
	return nil
}

// Keyring is the owner-curated allow-list of trusted attestor keys. It is the
// sole trust anchor for oracle verdicts: a valid signature from a key outside
// the ring is rejected.
type Keyring struct {
	owner string

	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewKeyring builds an empty ring managed by the given owner account.
func NewKeyring(owner string) *Keyring {
	return &Keyring{
		owner: owner,
		keys:  make(map[string]struct{}),
	}
}

// Add registers a trusted signer key. Owner-only; duplicates are a no-op.
func (k *Keyring) Add(caller string, key []byte) error {
	if caller != k.owner {
		return ErrNotOwner
	}
	if len(key) != ed25519.PublicKeySize {
		return ErrBadSignature
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[hex.EncodeToString(key)] = struct{}{}
	return nil
}

// Remove drops a signer key from the ring. Owner-only.
func (k *Keyring) Remove(caller string, key []byte) error {
	if caller != k.owner {
		return ErrNotOwner
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, hex.EncodeToString(key))
	return nil
}

// Trusted reports whether the key is on the allow-list.
func (k *Keyring) Trusted(key []byte) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[hex.EncodeToString(key)]
	return ok
}

// Keys returns the current allow-list.
func (k *Keyring) Keys() [][]byte {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([][]byte, 0, len(k.keys))
	for h := range k.keys {
		b, err := hex.DecodeString(h)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}
