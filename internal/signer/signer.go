package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSigningFailure marks a failed curve operation. It indicates a corrupted
// key and must never be retried; callers should treat it as a critical
// defect.
var ErrSigningFailure = errors.New("signing failure")

// SignedMessage is the immutable result of one signing operation. The hash
// binds the exact payload field values, so an instance is never reused
// across payloads.
type SignedMessage struct {
	Payload     TypedPayload
	DomainHash  [32]byte
	MessageHash [32]byte
	R           *big.Int
	S           *big.Int
}

// Flatten renders the signature in the list form the exchange verifier
// accepts: [0x<r>,0x<s>].
func (m *SignedMessage) Flatten() string {
	return fmt.Sprintf("[%#x,%#x]", m.R, m.S)
}

// SignatureBytes returns the 64-byte r||s signature.
func (m *SignedMessage) SignatureBytes() []byte {
	out := make([]byte, 64)
	m.R.FillBytes(out[:32])
	m.S.FillBytes(out[32:])
	return out
}

// Signer produces exchange-accepted signatures with the secondary key under
// a fixed domain. It is pure given its key and safe for concurrent use.
type Signer struct {
	key    *ecdsa.PrivateKey
	domain Domain
}

// New builds a signer for the given secondary key and network chain id.
func New(key *ecdsa.PrivateKey, chainID string) *Signer {
	return &Signer{
		key: key,
		domain: Domain{
			Name:    "Paradex",
			ChainID: chainID,
			Version: "1",
		},
	}
}

// Domain returns the signer's domain separator inputs.
func (s *Signer) Domain() Domain {
	return s.domain
}

// PublicKeyBytes returns the uncompressed secondary public key, as needed to
// verify signatures independently.
func (s *Signer) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// Sign validates the payload, computes its domain-separated message hash and
// signs it with the secondary key.
func (s *Signer) Sign(payload TypedPayload) (*SignedMessage, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	domainHash, msgHash, err := s.Hash(payload)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(msgHash[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	return &SignedMessage{
		Payload:     payload,
		DomainHash:  domainHash,
		MessageHash: msgHash,
		R:           new(big.Int).SetBytes(sig[:32]),
		S:           new(big.Int).SetBytes(sig[32:64]),
	}, nil
}

// Hash computes the domain hash and final message hash for a payload
// without signing, so verifiers can recompute both independently.
func (s *Signer) Hash(payload TypedPayload) (domainHash, msgHash [32]byte, err error) {
	domainHash, err = s.domain.Hash()
	if err != nil {
		return domainHash, msgHash, fmt.Errorf("%w: domain: %v", ErrSigningFailure, err)
	}

	values, err := payload.Values()
	if err != nil {
		return domainHash, msgHash, err
	}
	structHash, err := hashStruct(payload.TypeName(), payload.Members(), values)
	if err != nil {
		return domainHash, msgHash, &MalformedPayloadError{Reason: err.Error()}
	}

	return domainHash, messageHash(domainHash, structHash), nil
}

// Verify checks a signed message against the signer's public key. Intended
// for self-checks and tests; the exchange performs its own verification.
func (s *Signer) Verify(m *SignedMessage) bool {
	pub := crypto.CompressPubkey(&s.key.PublicKey)
	return crypto.VerifySignature(pub, m.MessageHash[:], m.SignatureBytes())
}
