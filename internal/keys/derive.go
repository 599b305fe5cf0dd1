package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidKey is returned when a base private key is malformed or outside
// the valid scalar range of the base curve. It is fatal; retrying a
// deterministic derivation with the same key cannot succeed.
var ErrInvalidKey = errors.New("invalid base private key")

// DerivationMessage builds the context string signed during key derivation.
// Binding the base chain id means the same base key yields different
// secondary keys on different networks.
func DerivationMessage(baseChainID uint64) string {
	return fmt.Sprintf("Paradex Stark Key Derivation: %d", baseChainID)
}

// Derive deterministically derives the secondary signing keypair from a base
// private key and a derivation context message.
//
// The base key signs the context message (personal-message scheme), the
// 64-byte r||s signature is hashed, and the digest is reduced into the valid
// scalar range. Same inputs always produce the same output, so a holder can
// reconstruct the secondary identity without ever persisting it.
//
// Derive has no side effects and is safe for concurrent use.
func Derive(basePrivateKeyHex string, context string) (*ecdsa.PrivateKey, common.Address, error) {
	baseKey, err := ParseBaseKey(basePrivateKeyHex)
	if err != nil {
		return nil, common.Address{}, err
	}
	return deriveFrom(baseKey, context)
}

func deriveFrom(baseKey *ecdsa.PrivateKey, context string) (*ecdsa.PrivateKey, common.Address, error) {
	sig, err := crypto.Sign(personalHash(context), baseKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("signing derivation message: %w", err)
	}

	// Hash r||s (drop the recovery byte) and reduce into [1, N-1].
	digest := crypto.Keccak256(sig[:64])
	nMinusOne := new(big.Int).Sub(crypto.S256().Params().N, big.NewInt(1))
	scalar := new(big.Int).SetBytes(digest)
	scalar.Mod(scalar, nMinusOne).Add(scalar, big.NewInt(1))

	secondary, err := crypto.ToECDSA(scalar.FillBytes(make([]byte, 32)))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("building secondary key: %w", err)
	}

	return secondary, crypto.PubkeyToAddress(secondary.PublicKey), nil
}

// ParseBaseKey validates and parses a hex-encoded base private key.
func ParseBaseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	trimmed := strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// personalHash hashes a message under the base chain's signed-message scheme
// so the derivation signature can never be replayed as a transaction.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}
