package keys

import (
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Credential owns the keypair material for one client instance. The
// secondary key is derived on first use and cached for the credential's
// lifetime; after that the credential is effectively immutable.
type Credential struct {
	baseKey     *ecdsa.PrivateKey
	baseAddress common.Address
	context     string

	once          sync.Once
	secondary     *ecdsa.PrivateKey
	secondaryAddr common.Address
	deriveErr     error
}

// NewCredential builds a credential from a base private key. The context
// string is bound into derivation (see DerivationMessage).
func NewCredential(basePrivateKeyHex string, context string) (*Credential, error) {
	baseKey, err := ParseBaseKey(basePrivateKeyHex)
	if err != nil {
		return nil, err
	}
	return &Credential{
		baseKey:     baseKey,
		baseAddress: crypto.PubkeyToAddress(baseKey.PublicKey),
		context:     context,
	}, nil
}

// NewSecondaryCredential builds a credential directly from a secondary key,
// for holders that operate a subkey without the base key present.
func NewSecondaryCredential(secondaryPrivateKeyHex string) (*Credential, error) {
	key, err := ParseBaseKey(secondaryPrivateKeyHex)
	if err != nil {
		return nil, err
	}
	c := &Credential{}
	c.once.Do(func() {
		c.secondary = key
		c.secondaryAddr = crypto.PubkeyToAddress(key.PublicKey)
	})
	return c, nil
}

// BaseAddress returns the base account address. Zero for subkey credentials.
func (c *Credential) BaseAddress() common.Address {
	return c.baseAddress
}

// Secondary returns the secondary signing key and address, deriving and
// caching them on first call.
func (c *Credential) Secondary() (*ecdsa.PrivateKey, common.Address, error) {
	c.once.Do(func() {
		c.secondary, c.secondaryAddr, c.deriveErr = deriveFrom(c.baseKey, c.context)
	})
	return c.secondary, c.secondaryAddr, c.deriveErr
}
