package dpsecret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// SealedShareSize is the size of a share after [Seal].
const SealedShareSize = nonceSize + ShareSize + box.Overhead

// KeyPair is a validator's share encryption key pair.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair returns a new KeyPair reading randomness from rnd,
// or from crypto/rand if rnd is nil.
func GenerateKeyPair(rnd io.Reader) (KeyPair, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	pub, priv, err := box.GenerateKey(rnd)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return KeyPair{Public: *pub, Private: *priv}, nil
}

// Seal encrypts share from sender to recipient.
// The output is the random nonce followed by the sealed box.
func Seal(share []byte, recipient [32]byte, sender KeyPair, rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rnd, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	out := make([]byte, nonceSize, nonceSize+len(share)+box.Overhead)
	copy(out, nonce[:])
	return box.Seal(out, share, &nonce, &recipient, &sender.Private), nil
}

// ErrOpenFailed is returned by [Open] when a sealed share
// cannot be authenticated.
var ErrOpenFailed = errors.New("failed to open sealed share")

// Open decrypts a share sealed by sender for recipient.
func Open(sealed []byte, sender [32]byte, recipient KeyPair) ([]byte, error) {
	if len(sealed) < nonceSize+box.Overhead {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrOpenFailed, len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := box.Open(nil, sealed[nonceSize:], &nonce, &sender, &recipient.Private)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}
